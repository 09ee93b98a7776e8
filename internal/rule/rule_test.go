package rule

import (
	"context"
	"errors"
	"testing"

	"github.com/imtcpd/imtcpd/internal/message"
	"github.com/imtcpd/imtcpd/internal/ruleset"
)

func TestRule_ActionCount(t *testing.T) {
	r := New("noop", nil)
	if r.ActionCount() != 0 {
		t.Fatalf("ActionCount = %d, want 0", r.ActionCount())
	}
	r = New("one", nil, NewFuncAction("a", func(context.Context, *message.Message) error { return nil }))
	if r.ActionCount() != 1 {
		t.Fatalf("ActionCount = %d, want 1", r.ActionCount())
	}
}

func TestRule_ProcessBatch_FilterSkipsNonMatching(t *testing.T) {
	var touched []string
	action := NewFuncAction("tag", func(_ context.Context, msg *message.Message) error {
		touched = append(touched, msg.InputName)
		return nil
	})
	r := New("only-a", func(msg *message.Message) bool { return msg.InputName == "a" }, action)

	batch := &ruleset.Batch{Slots: []ruleset.Slot{
		{Payload: &message.Message{InputName: "a"}, State: ruleset.StateNew},
		{Payload: &message.Message{InputName: "b"}, State: ruleset.StateNew},
	}}

	if err := r.ProcessBatch(context.Background(), batch); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(touched) != 1 || touched[0] != "a" {
		t.Fatalf("touched = %v, want [a]", touched)
	}
	if batch.Slots[0].State != ruleset.StateSub {
		t.Fatalf("matching slot should be SUB, got %v", batch.Slots[0].State)
	}
	if batch.Slots[1].State != ruleset.StateNew {
		t.Fatalf("non-matching slot should be untouched, got %v", batch.Slots[1].State)
	}
}

func TestRule_ProcessBatch_ActionErrorMarksBad(t *testing.T) {
	boom := errors.New("boom")
	action := NewFuncAction("fail", func(context.Context, *message.Message) error { return boom })
	r := New("failer", nil, action)

	batch := &ruleset.Batch{Slots: []ruleset.Slot{
		{Payload: &message.Message{InputName: "a"}, State: ruleset.StateNew},
	}}

	err := r.ProcessBatch(context.Background(), batch)
	if !errors.Is(err, boom) {
		t.Fatalf("ProcessBatch error = %v, want boom", err)
	}
	if batch.Slots[0].State != ruleset.StateBad {
		t.Fatalf("failed slot should be BAD, got %v", batch.Slots[0].State)
	}
}

func TestRule_ProcessBatch_SkipsDiscardedSlots(t *testing.T) {
	var touched int
	action := NewFuncAction("count", func(context.Context, *message.Message) error {
		touched++
		return nil
	})
	r := New("counter", nil, action)

	batch := &ruleset.Batch{Slots: []ruleset.Slot{
		{Payload: &message.Message{}, State: ruleset.StateDisc},
		{Payload: &message.Message{}, State: ruleset.StateNew},
	}}

	if err := r.ProcessBatch(context.Background(), batch); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if touched != 1 {
		t.Fatalf("touched = %d, want 1 (DISC slot must be skipped)", touched)
	}
}

func TestRule_IterateAllActions_VisitsInOrder(t *testing.T) {
	a1 := NewFuncAction("first", func(context.Context, *message.Message) error { return nil })
	a2 := NewFuncAction("second", func(context.Context, *message.Message) error { return nil })
	r := New("ordered", nil, a1, a2)

	var seen []string
	err := r.IterateAllActions(context.Background(), func(_ context.Context, name string) error {
		seen = append(seen, name)
		return nil
	})
	if err != nil {
		t.Fatalf("IterateAllActions: %v", err)
	}
	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Fatalf("seen = %v, want [first second]", seen)
	}
}
