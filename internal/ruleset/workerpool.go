package ruleset

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/imtcpd/imtcpd/internal/message"
	"github.com/imtcpd/imtcpd/internal/queue"
)

// WorkerPool drains one or more ruleset queues concurrently, wrapping
// each dequeued message in a single-element, single-ruleset batch and
// handing it to a Dispatcher. A message is thus commonly produced on a
// TCP server's I/O reactor and consumed here on a different goroutine.
type WorkerPool struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    Metrics

	shutdownImmediate *atomic.Bool
}

// NewWorkerPool builds a pool that dispatches through d, sharing
// shutdownImmediate with the TCP servers feeding its queues so that
// cooperative shutdown is observed within one message processing step.
func NewWorkerPool(d *Dispatcher, logger *slog.Logger, shutdownImmediate *atomic.Bool) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{dispatcher: d, logger: logger, shutdownImmediate: shutdownImmediate}
}

// SetMetrics installs the pool's per-queue depth gauge. Passing nil
// disables reporting.
func (wp *WorkerPool) SetMetrics(m Metrics) { wp.metrics = m }

// Source pairs a ruleset with the queue a worker should drain for it.
type Source struct {
	Ruleset *Ruleset
	Queue   *queue.Queue
}

// Run spawns workersPerQueue goroutines per source and blocks until ctx
// is cancelled or every queue has been closed and drained. It returns the
// first non-context error encountered, if any.
func (wp *WorkerPool) Run(ctx context.Context, sources []Source, workersPerQueue int) error {
	if workersPerQueue < 1 {
		workersPerQueue = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		for i := 0; i < workersPerQueue; i++ {
			g.Go(func() error {
				wp.drain(ctx, src)
				return nil
			})
		}
	}
	return g.Wait()
}

func (wp *WorkerPool) drain(ctx context.Context, src Source) {
	for {
		if wp.shutdownImmediate != nil && wp.shutdownImmediate.Load() {
			return
		}

		msg, ok := src.Queue.Dequeue(ctx)
		if !ok {
			return
		}
		if wp.metrics != nil {
			wp.metrics.SetQueueDepth(rulesetName(src.Ruleset), src.Queue.Len())
		}

		wp.process(ctx, src.Ruleset, msg)
	}
}

func (wp *WorkerPool) process(ctx context.Context, rs *Ruleset, msg *message.Message) {
	batch := NewSingleRulesetBatch(rs, []*message.Message{msg}, wp.shutdownImmediate)
	if err := wp.dispatcher.ProcessBatch(ctx, batch); err != nil {
		wp.logger.Warn("batch dispatch failed",
			slog.String("ruleset", rulesetName(rs)),
			slog.Any("error", err))
	}
}

func rulesetName(rs *Ruleset) string {
	if rs == nil {
		return ""
	}
	return rs.Name()
}
