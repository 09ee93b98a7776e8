// Package daemon binds a loaded config.Config to a running engine
// instance: it constructs the ruleset registry, the TCP server, and the
// worker pool that drains each ruleset's queue through the batch
// dispatcher, following the source's loadBegin/addInstance/loadEnd/
// checkConfig/activatePrePrivDrop/freeConfig construction phases (§4.4,
// §4.7 of the spec this engine implements).
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imtcpd/imtcpd/internal/acl"
	"github.com/imtcpd/imtcpd/internal/config"
	imtcpmetrics "github.com/imtcpd/imtcpd/internal/metrics"
	"github.com/imtcpd/imtcpd/internal/queue"
	"github.com/imtcpd/imtcpd/internal/rule"
	"github.com/imtcpd/imtcpd/internal/ruleset"
	"github.com/imtcpd/imtcpd/internal/streamdriver"
	"github.com/imtcpd/imtcpd/internal/synparse"
	"github.com/imtcpd/imtcpd/internal/tcpsrv"
)

// ErrParserNotFound is surfaced (wrapping synparse.ErrParserNotFound) when
// a ruleset config names a parser the engine's parser registry does not
// know about. Corresponds to the spec's PARSER_NOT_FOUND operator error.
var ErrParserNotFound = errors.New("daemon: parser not found")

// Daemon is one fully constructed engine instance: the ruleset registry,
// the TCP server listening on every configured instance, and the worker
// pool dispatching dequeued messages through the batch dispatcher.
//
// Exactly one TCP server object exists per Daemon, matching the spec's
// "exactly one TCP server object is created per process" invariant.
type Daemon struct {
	logger *slog.Logger
	cfg    *config.Config

	parsers  *synparse.Registry
	registry *ruleset.Registry
	tcp      *tcpsrv.Server
	pool     *ruleset.WorkerPool
	sources  []ruleset.Source
	metrics  *imtcpmetrics.Collector

	workersPerQueue int
}

// Logger returns the daemon's logger, for callers wiring it into an HTTP
// admin server or CLI alongside the daemon itself.
func (d *Daemon) Logger() *slog.Logger { return d.logger }

// Registry returns the ruleset registry, for the admin introspection
// surface (internal/server) and for Reload.
func (d *Daemon) Registry() *ruleset.Registry { return d.registry }

// TCPServer returns the constructed TCP server, for the admin surface's
// session-count view and for the owning main package's Run/Shutdown
// orchestration.
func (d *Daemon) TCPServer() *tcpsrv.Server { return d.tcp }

// Build runs the full construction pipeline against cfg: loadBegin
// (fresh registry and parser set), addInstance (one ruleset per
// config.RulesetConfig plus its default parse rule), checkConfig
// (resolve and validate every listener's ruleset binding), and
// activatePrePrivDrop (open every listener socket). cfg must already
// have passed config.Validate.
func Build(cfg *config.Config, logger *slog.Logger, metrics *imtcpmetrics.Collector) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		logger:          logger,
		cfg:             cfg,
		parsers:         synparse.DefaultRegistry(),
		metrics:         metrics,
		workersPerQueue: 2,
	}

	if err := d.loadBegin(); err != nil {
		return nil, err
	}
	for _, rc := range cfg.Rulesets {
		if err := d.addInstance(rc); err != nil {
			return nil, err
		}
	}
	if err := d.checkConfig(cfg); err != nil {
		return nil, err
	}
	if err := d.activatePrePrivDrop(cfg, metrics); err != nil {
		return nil, err
	}

	return d, nil
}

// loadBegin resets the daemon to a fresh ruleset registry backed by a new
// shared main queue, the Go-native equivalent of resetConfigVariables/
// rulesetClassAddRuleset's reset-to-defaults step. The TCP server is
// built later, in activatePrePrivDrop.
func (d *Daemon) loadBegin() error {
	mainQueue := queue.New(queue.Policy{})
	d.registry = ruleset.NewRegistry(mainQueue)
	return nil
}

// addInstance constructs one ruleset from rc: registers it, attaches its
// parser list (validated against the engine's parser registry), attaches
// its private queue if configured, and gives it a default rule whose sole
// action runs the configured parsers in order against every message.
func (d *Daemon) addInstance(rc config.RulesetConfig) error {
	rs := ruleset.NewRuleset(rc.Name)
	if err := d.registry.ConstructFinalize(rs); err != nil {
		return fmt.Errorf("ruleset %q: %w", rc.Name, err)
	}

	for _, name := range rc.Parsers {
		if _, err := d.parsers.Lookup(name); err != nil {
			return fmt.Errorf("ruleset %q: parser %q: %w", rc.Name, name, ErrParserNotFound)
		}
		d.registry.AddParser(rs, name)
	}

	// Every ruleset gets its own private queue, even absent an explicit
	// QueueConfig: the worker pool drains one source per ruleset with a
	// single-ruleset batch, so two rulesets sharing one queue would let
	// the dispatcher run one ruleset's rules against another's messages.
	// Falling back to the registry's shared mainQueue is reserved for a
	// ruleset nothing in config ever attaches a queue to directly.
	policy := queue.Policy{}
	if rc.Queue != nil {
		policy.Capacity = rc.Queue.Capacity
		policy.HighWatermark = rc.Queue.LightDelayableThreshold
	}
	q := queue.New(policy)
	if err := d.registry.AttachQueue(rs, q); err != nil {
		return fmt.Errorf("ruleset %q: %w", rc.Name, err)
	}

	parseNames := rc.Parsers
	if len(parseNames) == 0 {
		parseNames = d.parsers.Names()
	}
	metrics := d.metrics
	onParseError := func(parserName string) {
		if metrics != nil {
			metrics.IncParserErrors(parserName)
		}
	}
	parseAction := rule.NewParseAction(parseNames, d.parsers, onParseError)
	defaultRule := rule.New(rc.Name+"-parse", nil, parseAction)
	if err := d.registry.AddRule(rs, defaultRule); err != nil {
		return fmt.Errorf("ruleset %q: default rule: %w", rc.Name, err)
	}

	d.sources = append(d.sources, ruleset.Source{Ruleset: rs, Queue: d.registry.GetRulesetQueue(rs)})
	return nil
}

// checkConfig resolves every listener's ruleset name against the
// registry up front, so a typo surfaces at startup rather than silently
// falling back to the default ruleset at accept time (the fallback the
// spec documents still happens inside tcpsrv.Server.ConfigureListen; this
// is an earlier, stricter check for the common case of a genuine typo).
func (d *Daemon) checkConfig(cfg *config.Config) error {
	if len(cfg.IMTCP.Listeners) == 0 {
		return config.ErrNoListeners
	}
	if d.registry.GetCurrent() == nil {
		return ruleset.ErrNoCurrRuleset
	}
	for _, li := range cfg.IMTCP.Listeners {
		if li.Ruleset == "" {
			continue
		}
		if _, err := d.registry.GetRuleset(li.Ruleset); err != nil {
			d.logger.Warn("listener names unknown ruleset, will fall back to default at accept",
				slog.Int("port", li.Port), slog.String("ruleset", li.Ruleset))
		}
	}
	return nil
}

// activatePrePrivDrop builds the single shared TCP server, applies its
// module-level parameters, records every listener instance, and opens
// every listener socket.
func (d *Daemon) activatePrePrivDrop(cfg *config.Config, metrics *imtcpmetrics.Collector) error {
	driver := newDriver(cfg.IMTCP)

	d.tcp = tcpsrv.NewServer(driver, d.registry, d.logger)
	if metrics != nil {
		d.tcp.SetMetrics(metrics)
	}
	d.tcp.SetSessMax(cfg.IMTCP.MaxSessions)
	d.tcp.SetListenerMax(cfg.IMTCP.MaxListeners)
	d.tcp.SetKeepAlive(cfg.IMTCP.KeepAlive)
	d.tcp.SetNotifyOnClose(cfg.IMTCP.NotifyOnConnectionClose)
	d.tcp.SetAddtlFrameDelimiter(cfg.IMTCP.AddtlFrameDelimiter)
	d.tcp.SetDisableLFDelimiter(cfg.IMTCP.DisableLFDelimiter)
	d.tcp.SetFlowControl(cfg.IMTCP.FlowControl)
	d.tcp.SetMaxFrameSize(cfg.IMTCP.MaxFrameSize)

	for _, li := range cfg.IMTCP.Listeners {
		inputName := li.InputName
		if inputName == "" {
			inputName = cfg.IMTCP.InputName
		}
		octetFraming := li.OctetCountedFraming || cfg.IMTCP.OctetCountedFraming
		if err := d.tcp.ConfigureListen(li.BindAddr, li.Port, li.Ruleset, inputName, octetFraming); err != nil {
			return fmt.Errorf("listener :%d: %w", li.Port, err)
		}
	}

	if err := d.tcp.ConstructFinalize(context.Background()); err != nil {
		return fmt.Errorf("activatePrePrivDrop: %w", err)
	}

	dispatcher := ruleset.NewDispatcher(d.registry, d.logger)
	d.pool = ruleset.NewWorkerPool(dispatcher, d.logger, d.tcp.ShutdownImmediate())
	if metrics != nil {
		dispatcher.SetMetrics(metrics)
		d.pool.SetMetrics(metrics)
	}
	return nil
}

// Run starts the TCP accept loop and the worker pool that drains every
// ruleset's queue, blocking until ctx is cancelled or either fails.
func (d *Daemon) Run(ctx context.Context) error {
	errs := make(chan error, 2)
	go func() { errs <- d.tcp.Run(ctx) }()
	go func() { errs <- d.pool.Run(ctx, d.sources, d.workersPerQueue) }()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Shutdown tears down the TCP server and releases every ruleset's
// resources, the Go-native equivalent of freeConfig.
func (d *Daemon) Shutdown() {
	d.tcp.Shutdown()
	d.registry.DestructAllActions()
}

// Reload rebuilds the ruleset registry and its rule/parser/queue bindings
// from newCfg, without touching the already-open TCP listeners (tcpsrv has
// no API to rebind a live listener's ruleset pointer, so a listener keeps
// delivering to the *ruleset.Ruleset it resolved at ConfigureListen time
// until the process restarts). Any listener-bound ruleset name that no
// longer exists in the rebuilt registry is logged as ErrRulesetVanished,
// per the spec's documented "ruleset vanishes under a live listener"
// edge case, rather than forcing a rebind.
func (d *Daemon) Reload(ctx context.Context, newCfg *config.Config) error {
	next := &Daemon{
		logger:          d.logger,
		cfg:             newCfg,
		parsers:         synparse.DefaultRegistry(),
		metrics:         d.metrics,
		workersPerQueue: d.workersPerQueue,
	}
	if err := next.loadBegin(); err != nil {
		return err
	}
	for _, rc := range newCfg.Rulesets {
		if err := next.addInstance(rc); err != nil {
			return err
		}
	}

	for _, li := range d.cfg.IMTCP.Listeners {
		if li.Ruleset == "" {
			continue
		}
		if _, err := next.registry.GetRuleset(li.Ruleset); err != nil {
			d.logger.Warn("ruleset bound to live listener vanished on reload, listener keeps its old binding until restart",
				slog.Int("port", li.Port), slog.String("ruleset", li.Ruleset), slog.Any("error", ruleset.ErrRulesetVanished))
		}
	}

	old := d.registry
	d.registry = next.registry
	d.parsers = next.parsers
	d.sources = next.sources
	d.cfg = newCfg

	ruleset.NotifyHUP(ctx, d.registry, d.logger)
	old.DestructAllActions()
	return nil
}

// aclCacheSize bounds the driver's permitted-peer verdict cache, amortizing
// repeat connections from the same peer across accepts.
const aclCacheSize = 256

func newDriver(cfg config.IMTCPConfig) streamdriver.Driver {
	var driver streamdriver.Driver
	switch streamdriver.Mode(cfg.StreamDriverMode) {
	case streamdriver.ModeTLS:
		driver = streamdriver.NewTLSDriver(nil)
	default:
		driver = streamdriver.NewPlainDriver()
	}
	driver.SetMode(streamdriver.Mode(cfg.StreamDriverMode))
	driver.SetAuthMode(cfg.StreamDriverAuthMode)
	driver.SetACLCacheSize(aclCacheSize)
	driver.SetPermittedPeers(acl.NewList(cfg.StreamDriverPermitted))
	return driver
}
