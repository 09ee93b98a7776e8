package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/imtcpd/imtcpd/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Admin.Addr != ":8443" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":8443")
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.IMTCP.MaxSessions != 200 {
		t.Errorf("IMTCP.MaxSessions = %d, want 200", cfg.IMTCP.MaxSessions)
	}
	if cfg.IMTCP.MaxListeners != 20 {
		t.Errorf("IMTCP.MaxListeners = %d, want 20", cfg.IMTCP.MaxListeners)
	}
	if !cfg.IMTCP.OctetCountedFraming {
		t.Error("IMTCP.OctetCountedFraming = false, want true")
	}
	if cfg.IMTCP.AddtlFrameDelimiter != -1 {
		t.Errorf("IMTCP.AddtlFrameDelimiter = %d, want -1", cfg.IMTCP.AddtlFrameDelimiter)
	}
	if cfg.IMTCP.InputName != "imtcp" {
		t.Errorf("IMTCP.InputName = %q, want %q", cfg.IMTCP.InputName, "imtcp")
	}

	// DefaultConfig declares no listeners, so it does not pass Validate on
	// its own; that's exercised via a loaded YAML file below.
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  addr: ":9443"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
imtcp:
  max_sessions: 50
  max_listeners: 5
  keep_alive: true
  octet_counted_framing: true
  input_name: "imtcp"
  listeners:
    - port: 10514
      ruleset: R1
      input_name: imtcp
      octet_counted_framing: true
rulesets:
  - name: R1
    parsers: ["rfc5424", "rfc3164"]
    queue:
      capacity: 1000
      light_delayable_threshold: 100
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":9443" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":9443")
	}
	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.IMTCP.MaxSessions != 50 {
		t.Errorf("IMTCP.MaxSessions = %d, want 50", cfg.IMTCP.MaxSessions)
	}
	if len(cfg.IMTCP.Listeners) != 1 {
		t.Fatalf("len(IMTCP.Listeners) = %d, want 1", len(cfg.IMTCP.Listeners))
	}
	if cfg.IMTCP.Listeners[0].Port != 10514 {
		t.Errorf("Listeners[0].Port = %d, want 10514", cfg.IMTCP.Listeners[0].Port)
	}
	if cfg.IMTCP.Listeners[0].Ruleset != "R1" {
		t.Errorf("Listeners[0].Ruleset = %q, want %q", cfg.IMTCP.Listeners[0].Ruleset, "R1")
	}
	if len(cfg.Rulesets) != 1 {
		t.Fatalf("len(Rulesets) = %d, want 1", len(cfg.Rulesets))
	}
	if cfg.Rulesets[0].Name != "R1" {
		t.Errorf("Rulesets[0].Name = %q, want %q", cfg.Rulesets[0].Name, "R1")
	}
	if len(cfg.Rulesets[0].Parsers) != 2 {
		t.Fatalf("len(Rulesets[0].Parsers) = %d, want 2", len(cfg.Rulesets[0].Parsers))
	}
	if cfg.Rulesets[0].Queue == nil || cfg.Rulesets[0].Queue.Capacity != 1000 {
		t.Errorf("Rulesets[0].Queue = %+v, want Capacity=1000", cfg.Rulesets[0].Queue)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only declare a listener and override log level.
	// Everything else should inherit from DefaultConfig.
	yamlContent := `
log:
  level: "warn"
imtcp:
  listeners:
    - port: 10514
      ruleset: R1
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	// Defaults preserved.
	if cfg.Admin.Addr != ":8443" {
		t.Errorf("Admin.Addr = %q, want default %q", cfg.Admin.Addr, ":8443")
	}
	if cfg.IMTCP.MaxSessions != 200 {
		t.Errorf("IMTCP.MaxSessions = %d, want default 200", cfg.IMTCP.MaxSessions)
	}
	if cfg.IMTCP.AddtlFrameDelimiter != -1 {
		t.Errorf("IMTCP.AddtlFrameDelimiter = %d, want default -1", cfg.IMTCP.AddtlFrameDelimiter)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	baseListeners := []config.ListenerConfig{{Port: 10514, Ruleset: "R1"}}

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty admin addr",
			modify: func(cfg *config.Config) {
				cfg.Admin.Addr = ""
			},
			wantErr: config.ErrEmptyAdminAddr,
		},
		{
			name: "zero max sessions",
			modify: func(cfg *config.Config) {
				cfg.IMTCP.Listeners = baseListeners
				cfg.IMTCP.MaxSessions = 0
			},
			wantErr: config.ErrInvalidMaxSessions,
		},
		{
			name: "zero max listeners",
			modify: func(cfg *config.Config) {
				cfg.IMTCP.Listeners = baseListeners
				cfg.IMTCP.MaxListeners = 0
			},
			wantErr: config.ErrInvalidMaxListeners,
		},
		{
			name: "no listeners declared",
			modify: func(cfg *config.Config) {
				cfg.IMTCP.Listeners = nil
			},
			wantErr: config.ErrNoListeners,
		},
		{
			name: "duplicate ruleset name",
			modify: func(cfg *config.Config) {
				cfg.IMTCP.Listeners = baseListeners
				cfg.Rulesets = []config.RulesetConfig{{Name: "R1"}, {Name: "r1"}}
			},
			wantErr: config.ErrDuplicateRuleset,
		},
		{
			name: "empty ruleset name",
			modify: func(cfg *config.Config) {
				cfg.IMTCP.Listeners = baseListeners
				cfg.Rulesets = []config.RulesetConfig{{Name: ""}}
			},
			wantErr: config.ErrEmptyRulesetName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/imtcpd.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "imtcpd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
