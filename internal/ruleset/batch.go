package ruleset

import (
	"sync/atomic"

	"github.com/imtcpd/imtcpd/internal/message"
)

// SlotState tracks what the dispatcher has done with a batch element.
type SlotState int

const (
	// StateNew is the initial state of every slot at batch construction.
	StateNew SlotState = iota
	// StateSub marks a slot as submitted to a rule for processing.
	StateSub
	// StateBad marks a slot a rule rejected.
	StateBad
	// StateDisc marks a slot the dispatcher has already consumed — the
	// only state the dispatcher itself inspects.
	StateDisc
)

func (s SlotState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSub:
		return "SUB"
	case StateBad:
		return "BAD"
	case StateDisc:
		return "DISC"
	default:
		return "UNKNOWN"
	}
}

// Slot is one element of a Batch: a message payload, its processing
// state, and the ruleset it is bound to.
type Slot struct {
	Payload *message.Message
	State   SlotState
	Ruleset *Ruleset
}

// Batch is a contiguous, indexable collection of message slots dispatched
// together. When SingleRuleset is true, every non-DISC slot's Ruleset
// must equal Ruleset.
type Batch struct {
	Slots         []Slot
	SingleRuleset bool
	Ruleset       *Ruleset

	// ShutdownImmediate is a shared flag polled before each partition
	// step of the slow path; it is not checked between the elements of a
	// partition or inside the fast path. A nil pointer means no shutdown
	// is in progress.
	ShutdownImmediate *atomic.Bool
}

// NewSingleRulesetBatch builds a batch whose slots all belong to rs. rs
// may be nil, meaning "use the registry default at dispatch time".
func NewSingleRulesetBatch(rs *Ruleset, msgs []*message.Message, shutdownImmediate *atomic.Bool) *Batch {
	slots := make([]Slot, len(msgs))
	for i, m := range msgs {
		slots[i] = Slot{Payload: m, State: StateNew, Ruleset: rs}
	}
	return &Batch{
		Slots:             slots,
		SingleRuleset:     true,
		Ruleset:           rs,
		ShutdownImmediate: shutdownImmediate,
	}
}

// NewMixedBatch builds a multi-ruleset batch from msgs, each tagged with
// its own ruleset binding (rulesets[i]; nil, or an index past the end of
// rulesets, means the registry default). The slow path partitions it by
// ruleset at dispatch time.
func NewMixedBatch(msgs []*message.Message, rulesets []*Ruleset, shutdownImmediate *atomic.Bool) *Batch {
	slots := make([]Slot, len(msgs))
	for i, m := range msgs {
		var rs *Ruleset
		if i < len(rulesets) {
			rs = rulesets[i]
		}
		slots[i] = Slot{Payload: m, State: StateNew, Ruleset: rs}
	}
	return &Batch{
		Slots:             slots,
		SingleRuleset:     false,
		ShutdownImmediate: shutdownImmediate,
	}
}

// Len returns the batch's element count.
func (b *Batch) Len() int {
	return len(b.Slots)
}

// shuttingDown reports whether the batch's shared shutdown flag is set.
func (b *Batch) shuttingDown() bool {
	return b.ShutdownImmediate != nil && b.ShutdownImmediate.Load()
}
