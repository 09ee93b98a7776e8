package ruleset

import (
	"context"
	"log/slog"
)

// Metrics is the subset of observability hooks the dispatcher and worker
// pool call into. A nil Metrics is valid; every call site guards against
// it.
type Metrics interface {
	IncBatchDispatched(rulesetName string)
	AddMessagesProcessed(rulesetName string, n int)
	SetQueueDepth(queueName string, depth int)
}

// Dispatcher executes batches against the registry's rulesets: a fast
// path for batches already known to target one ruleset, and a slow path
// that partitions a mixed batch by ruleset before running the fast path
// on each partition.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  Metrics

	// AllocFunc, when non-nil, replaces the slow path's temporary-batch
	// allocation. Production code leaves this nil; tests set it to force
	// ErrAllocFail and assert the documented abort behavior.
	AllocFunc func(capacity int) (*Batch, error)
}

// NewDispatcher builds a Dispatcher bound to registry. A nil logger
// defaults to slog.Default().
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// SetMetrics installs the dispatcher's batches/messages counters. Passing
// nil disables reporting.
func (d *Dispatcher) SetMetrics(m Metrics) { d.metrics = m }

// ProcessBatch runs the fast path if batch.SingleRuleset, otherwise
// partitions via the slow path.
func (d *Dispatcher) ProcessBatch(ctx context.Context, batch *Batch) error {
	if batch.SingleRuleset {
		return d.fastPath(ctx, batch)
	}
	return d.slowPath(ctx, batch)
}

// fastPath resolves the batch's ruleset (falling back to the registry
// default) and runs every rule against the whole batch unconditionally.
// Short-circuiting which slots a rule actually touches is the rule's own
// concern, not the dispatcher's.
func (d *Dispatcher) fastPath(ctx context.Context, batch *Batch) error {
	rs := batch.Ruleset
	if rs == nil {
		rs = d.registry.GetDefault()
	}
	if rs == nil {
		return ErrNoCurrRuleset
	}

	for _, rule := range rs.Rules() {
		if err := rule.ProcessBatch(ctx, batch); err != nil {
			d.logger.Warn("rule processing failed",
				slog.String("ruleset", rs.Name()),
				slog.Any("error", err))
		}
	}

	if d.metrics != nil {
		d.metrics.IncBatchDispatched(rs.Name())
		d.metrics.AddMessagesProcessed(rs.Name(), batch.Len())
	}
	return nil
}

// slowPath repeatedly finds the next unprocessed slot, copies every slot
// sharing its ruleset into a temporary single-ruleset batch preserving
// order, marks the source slots DISC, and runs the fast path on the
// temporary batch. Per spec this guarantees per-ruleset ordering with no
// guarantee across rulesets.
func (d *Dispatcher) slowPath(ctx context.Context, batch *Batch) error {
	for {
		if batch.shuttingDown() {
			return nil
		}

		idx := firstUnprocessed(batch)
		if idx == -1 {
			return nil
		}

		// rs is the raw ruleset pointer carried by the first unprocessed
		// slot, nil included — resolution of nil to the registry default
		// happens inside fastPath, not here, so that every nil-bound
		// slot partitions together regardless of what the default was
		// at partition time.
		rs := batch.Slots[idx].Ruleset

		temp, err := d.allocTemp(batch.Len())
		if err != nil {
			d.logger.Error("batch allocation failed, aborting slow path",
				slog.Any("error", err))
			return ErrAllocFail
		}

		var partitioned []Slot
		for i := range batch.Slots {
			s := &batch.Slots[i]
			if s.State == StateDisc || s.Ruleset != rs {
				continue
			}
			partitioned = append(partitioned, Slot{Payload: s.Payload, State: StateNew, Ruleset: rs})
			s.State = StateDisc
		}

		temp.SingleRuleset = true
		temp.Ruleset = rs
		temp.ShutdownImmediate = batch.ShutdownImmediate
		temp.Slots = partitioned

		if err := d.fastPath(ctx, temp); err != nil {
			d.logger.Warn("fast path failed during partition",
				slog.Any("error", err))
		}
	}
}

func (d *Dispatcher) allocTemp(capacity int) (*Batch, error) {
	if d.AllocFunc != nil {
		return d.AllocFunc(capacity)
	}
	return &Batch{Slots: make([]Slot, 0, capacity)}, nil
}

// firstUnprocessed returns the index of the first slot whose state is not
// StateDisc, or -1 if every slot has been consumed.
func firstUnprocessed(batch *Batch) int {
	for i := range batch.Slots {
		if batch.Slots[i].State != StateDisc {
			return i
		}
	}
	return -1
}
