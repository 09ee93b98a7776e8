package rule

import (
	"context"

	"github.com/imtcpd/imtcpd/internal/message"
	"github.com/imtcpd/imtcpd/internal/ruleset"
)

// Filter decides whether a rule applies to a given message. A nil filter
// matches every message.
type Filter func(msg *message.Message) bool

// Rule is a filter-bearing chain of actions satisfying ruleset.Rule. A
// slot the filter rejects is left untouched (neither SUB nor BAD) so a
// later rule in the same ruleset still gets a chance at it.
type Rule struct {
	name    string
	filter  Filter
	actions []Action
}

// New builds a Rule. Callers add it to a registry via Registry.AddRule,
// which rejects rules reporting zero actions.
func New(name string, filter Filter, actions ...Action) *Rule {
	return &Rule{name: name, filter: filter, actions: actions}
}

// Name returns the rule's identifier, used in log messages.
func (r *Rule) Name() string { return r.name }

// ActionCount implements ruleset.Rule.
func (r *Rule) ActionCount() int { return len(r.actions) }

// ProcessBatch implements ruleset.Rule. It runs the filter and action
// chain against every non-discarded slot in the batch, marking each slot
// SUB on success or BAD on the first action failure. The dispatcher
// iterates all rules in a ruleset unconditionally; short-circuiting which
// slots this rule actually touches is entirely this method's concern.
func (r *Rule) ProcessBatch(ctx context.Context, batch *ruleset.Batch) error {
	var firstErr error

	for i := range batch.Slots {
		slot := &batch.Slots[i]
		if slot.State == ruleset.StateDisc {
			continue
		}
		if r.filter != nil && !r.filter(slot.Payload) {
			continue
		}

		var actionErr error
		for _, a := range r.actions {
			if err := a.Execute(ctx, slot.Payload); err != nil {
				actionErr = err
				break
			}
		}

		if actionErr != nil {
			slot.State = ruleset.StateBad
			if firstErr == nil {
				firstErr = actionErr
			}
			continue
		}
		slot.State = ruleset.StateSub
	}

	return firstErr
}

// IterateAllActions implements ruleset.Rule, visiting actions in the
// order they were added.
func (r *Rule) IterateAllActions(ctx context.Context, fn ruleset.ActionFunc) error {
	for _, a := range r.actions {
		if err := fn(ctx, a.Name()); err != nil {
			return err
		}
	}
	return nil
}
