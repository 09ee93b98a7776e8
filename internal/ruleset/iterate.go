package ruleset

import (
	"context"
	"log/slog"
)

// IterateAllActions walks every ruleset in insertion order, then every
// rule within it in insertion order, delegating to each rule's own
// action iterator. Used for HUP notification. Not safe against concurrent
// registry mutation — callers must quiesce config changes first.
func (r *Registry) IterateAllActions(ctx context.Context, fn ActionFunc) error {
	for _, rs := range r.Rulesets() {
		for _, rule := range rs.Rules() {
			if err := rule.IterateAllActions(ctx, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// NotifyHUP is a convenience wrapper around IterateAllActions for the
// common case: log every action name visited, ignoring per-action errors
// rather than aborting the walk.
func NotifyHUP(ctx context.Context, registry *Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	_ = registry.IterateAllActions(ctx, func(ctx context.Context, name string) error {
		logger.Info("HUP notify", slog.String("action", name))
		return nil
	})
}
