package daemon_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/imtcpd/imtcpd/internal/config"
	"github.com/imtcpd/imtcpd/internal/daemon"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.IMTCP.Listeners = []config.ListenerConfig{
		{Port: 0, Ruleset: "R1", InputName: "imtcp"},
	}
	cfg.Rulesets = []config.RulesetConfig{
		{Name: "R1", Parsers: []string{"rfc5424", "rfc3164"}},
	}
	return cfg
}

func TestBuild_ConstructsRegistryAndServer(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	logger := slog.New(slog.DiscardHandler)

	d, err := daemon.Build(cfg, logger, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(d.Shutdown)

	if d.Registry().GetCurrent() == nil {
		t.Fatal("registry has no current ruleset after Build")
	}
	rs, err := d.Registry().GetRuleset("R1")
	if err != nil {
		t.Fatalf("GetRuleset(R1): %v", err)
	}
	if len(rs.Rules()) != 1 {
		t.Fatalf("len(Rules()) = %d, want 1 default parse rule", len(rs.Rules()))
	}
	if d.TCPServer().ActiveSessionCount() != 0 {
		t.Errorf("ActiveSessionCount = %d, want 0", d.TCPServer().ActiveSessionCount())
	}
}

func TestBuild_UnknownParserRejected(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Rulesets[0].Parsers = []string{"does-not-exist"}

	_, err := daemon.Build(cfg, slog.New(slog.DiscardHandler), nil)
	if err == nil {
		t.Fatal("Build succeeded with unknown parser, want error")
	}
}

func TestBuild_NoListenersRejected(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.IMTCP.Listeners = nil

	_, err := daemon.Build(cfg, slog.New(slog.DiscardHandler), nil)
	if err == nil {
		t.Fatal("Build succeeded with no listeners, want error")
	}
}

func TestDaemon_RunAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	d, err := daemon.Build(cfg, slog.New(slog.DiscardHandler), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	d.Shutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}

func TestDaemon_ReloadRebuildsRegistry(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	d, err := daemon.Build(cfg, slog.New(slog.DiscardHandler), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(d.Shutdown)

	newCfg := testConfig()
	newCfg.Rulesets[0].Parsers = []string{"rfc3164"}

	if err := d.Reload(context.Background(), newCfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	rs, err := d.Registry().GetRuleset("R1")
	if err != nil {
		t.Fatalf("GetRuleset(R1) after reload: %v", err)
	}
	if got := rs.Parsers(); len(got) != 1 || got[0] != "rfc3164" {
		t.Errorf("Parsers() after reload = %v, want [rfc3164]", got)
	}
}
