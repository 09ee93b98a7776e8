// Package rule provides the concrete Rule implementation that satisfies
// package ruleset's Rule interface: a filter predicate plus an ordered
// action chain.
package rule

import (
	"context"

	"github.com/imtcpd/imtcpd/internal/message"
)

// Action is one step of a rule's action chain. Rules are opaque to the
// registry and dispatcher; Action is this package's own abstraction for
// composing them, not part of that contract.
type Action interface {
	Name() string
	Execute(ctx context.Context, msg *message.Message) error
}

// FuncAction adapts a plain function into an Action.
type FuncAction struct {
	name string
	fn   func(ctx context.Context, msg *message.Message) error
}

// NewFuncAction builds an Action named name that runs fn.
func NewFuncAction(name string, fn func(ctx context.Context, msg *message.Message) error) *FuncAction {
	return &FuncAction{name: name, fn: fn}
}

func (a *FuncAction) Name() string { return a.name }

func (a *FuncAction) Execute(ctx context.Context, msg *message.Message) error {
	return a.fn(ctx, msg)
}
