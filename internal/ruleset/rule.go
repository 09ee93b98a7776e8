package ruleset

import "context"

// Rule is opaque to the registry and dispatcher beyond this contract: a
// filter-bearing chain of actions that consumes a batch and can describe
// its own actions to a visitor. Concrete rules live in package rule.
type Rule interface {
	// ProcessBatch runs this rule's filter and action chain against every
	// slot in batch. Implementations decide internally which slots to
	// touch and whether to short-circuit; the dispatcher never inspects
	// rule internals.
	ProcessBatch(ctx context.Context, batch *Batch) error

	// IterateAllActions calls fn once per action owned by this rule, in
	// the order they were added. Used by HUP notification and teardown.
	IterateAllActions(ctx context.Context, fn ActionFunc) error

	// ActionCount reports how many actions this rule owns. AddRule
	// rejects any rule reporting zero.
	ActionCount() int
}

// ActionFunc is invoked once per action during iteration. ctx carries
// cancellation for HUP/shutdown walks; the action's own identifier (as it
// chooses to report one) is passed as name.
type ActionFunc func(ctx context.Context, name string) error
