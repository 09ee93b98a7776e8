// Package imtcpmetrics exposes Prometheus metrics for the TCP syslog
// ingest engine: session lifecycle, framing errors, ACL rejections, and
// batch dispatch volume.
package imtcpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "imtcpd"
	subsystem = "imtcp"
)

// Label names.
const (
	labelInputName = "input_name"
	labelRuleset   = "ruleset"
)

// -------------------------------------------------------------------------
// Collector — Prometheus imtcp Metrics
// -------------------------------------------------------------------------

// Collector holds every Prometheus metric the TCP listener, ruleset
// dispatcher, and queue layer report against. It satisfies
// tcpsrv.Metrics directly so a *Collector can be passed to
// tcpsrv.Server.SetMetrics without an adapter.
type Collector struct {
	// ActiveSessions tracks currently open TCP sessions per input.
	ActiveSessions *prometheus.GaugeVec

	// SessionsAccepted counts accepted connections per input.
	SessionsAccepted *prometheus.CounterVec

	// SessionsClosed counts closed sessions per input.
	SessionsClosed *prometheus.CounterVec

	// RejectedPeers counts connections refused by the permitted-peer ACL.
	RejectedPeers *prometheus.CounterVec

	// FramingErrors counts sessions dropped due to malformed framing
	// (overflowed octet count, frame exceeding the configured maximum).
	FramingErrors *prometheus.CounterVec

	// DroppedOnShutdown counts messages that could not be delivered to a
	// queue because shutdown was already in progress.
	DroppedOnShutdown *prometheus.CounterVec

	// BatchesDispatched counts batches the ruleset dispatcher processed,
	// labeled by ruleset name.
	BatchesDispatched *prometheus.CounterVec

	// MessagesProcessed counts individual slots a rule chain consumed,
	// labeled by ruleset name.
	MessagesProcessed *prometheus.CounterVec

	// ParserErrors counts syslog parse failures per parser name.
	ParserErrors *prometheus.CounterVec

	// QueueDepth tracks the current occupancy of a named queue.
	QueueDepth *prometheus.GaugeVec
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ActiveSessions,
		c.SessionsAccepted,
		c.SessionsClosed,
		c.RejectedPeers,
		c.FramingErrors,
		c.DroppedOnShutdown,
		c.BatchesDispatched,
		c.MessagesProcessed,
		c.ParserErrors,
		c.QueueDepth,
	)

	return c
}

func newMetrics() *Collector {
	inputLabels := []string{labelInputName}
	rulesetLabels := []string{labelRuleset}

	return &Collector{
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Number of currently open TCP syslog sessions.",
		}, inputLabels),

		SessionsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_accepted_total",
			Help:      "Total TCP connections accepted.",
		}, inputLabels),

		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_closed_total",
			Help:      "Total TCP sessions closed, regular or errored.",
		}, inputLabels),

		RejectedPeers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_peers_total",
			Help:      "Total connections refused by the permitted-peer ACL.",
		}, inputLabels),

		FramingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "framing_errors_total",
			Help:      "Total sessions dropped due to malformed frame data.",
		}, inputLabels),

		DroppedOnShutdown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dropped_on_shutdown_total",
			Help:      "Total messages that could not be enqueued because shutdown was already in progress.",
		}, inputLabels),

		BatchesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_dispatched_total",
			Help:      "Total batches processed by the ruleset dispatcher.",
		}, rulesetLabels),

		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_processed_total",
			Help:      "Total message slots consumed by a ruleset's rule chain.",
		}, rulesetLabels),

		ParserErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "parser_errors_total",
			Help:      "Total syslog parse failures, labeled by parser name.",
		}, []string{"parser"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Current occupancy of a named queue.",
		}, []string{"queue"}),
	}
}

// -------------------------------------------------------------------------
// tcpsrv.Metrics implementation
// -------------------------------------------------------------------------
//
// These methods use the empty input-name label ("") as a package-wide
// total. Only rejected peers also have a per-listener breakdown, via
// IncRejectedPeersFor below.

func (c *Collector) IncRejectedPeers() {
	c.RejectedPeers.WithLabelValues("").Inc()
}

func (c *Collector) IncFramingErrors() {
	c.FramingErrors.WithLabelValues("").Inc()
}

func (c *Collector) IncDroppedOnShutdown() {
	c.DroppedOnShutdown.WithLabelValues("").Inc()
}

func (c *Collector) IncSessionsAccepted() {
	c.SessionsAccepted.WithLabelValues("").Inc()
}

func (c *Collector) IncSessionsClosed() {
	c.SessionsClosed.WithLabelValues("").Inc()
}

func (c *Collector) SetActiveSessions(n int) {
	c.ActiveSessions.WithLabelValues("").Set(float64(n))
}

// -------------------------------------------------------------------------
// Per-input and dispatch-layer helpers
// -------------------------------------------------------------------------

// IncRejectedPeersFor increments the rejected-peer counter for a specific
// listener input name.
func (c *Collector) IncRejectedPeersFor(inputName string) {
	c.RejectedPeers.WithLabelValues(inputName).Inc()
}

// IncBatchDispatched increments the batches-dispatched counter for a
// named ruleset.
func (c *Collector) IncBatchDispatched(rulesetName string) {
	c.BatchesDispatched.WithLabelValues(rulesetName).Inc()
}

// AddMessagesProcessed adds n to the messages-processed counter for a
// named ruleset.
func (c *Collector) AddMessagesProcessed(rulesetName string, n int) {
	if n <= 0 {
		return
	}
	c.MessagesProcessed.WithLabelValues(rulesetName).Add(float64(n))
}

// IncParserErrors increments the parse-failure counter for a named
// parser.
func (c *Collector) IncParserErrors(parserName string) {
	c.ParserErrors.WithLabelValues(parserName).Inc()
}

// SetQueueDepth records the current occupancy of a named queue.
func (c *Collector) SetQueueDepth(queueName string, depth int) {
	c.QueueDepth.WithLabelValues(queueName).Set(float64(depth))
}
