// Package config manages imtcpd daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and the legacy directive
// defaults table. Models the source's "cs" legacy option block as the
// Config struct itself: a per-load builder populated from
// DefaultModuleOptions(), then consumed immutably once Load returns.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete imtcpd configuration.
type Config struct {
	Admin    AdminConfig     `koanf:"admin"`
	Metrics  MetricsConfig   `koanf:"metrics"`
	Log      LogConfig       `koanf:"log"`
	IMTCP    IMTCPConfig     `koanf:"imtcp"`
	Rulesets []RulesetConfig `koanf:"rulesets"`
}

// AdminConfig holds the admin HTTP API / health-check endpoint.
type AdminConfig struct {
	// Addr is the admin HTTP listen address (e.g., ":8443").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// IMTCPConfig mirrors the module-level legacy directive block (§6):
// shared parameters applied to the single TCP server object created on
// activation, plus the declared listener instances.
type IMTCPConfig struct {
	MaxSessions             int              `koanf:"max_sessions"`
	MaxListeners            int              `koanf:"max_listeners"`
	KeepAlive               bool             `koanf:"keep_alive"`
	OctetCountedFraming     bool             `koanf:"octet_counted_framing"`
	NotifyOnConnectionClose bool             `koanf:"notify_on_connection_close"`
	StreamDriverMode        int              `koanf:"stream_driver_mode"`
	StreamDriverAuthMode    string           `koanf:"stream_driver_auth_mode"`
	StreamDriverPermitted   []string         `koanf:"stream_driver_permitted_peers"`
	AddtlFrameDelimiter     int              `koanf:"addtl_frame_delimiter"`
	DisableLFDelimiter      bool             `koanf:"disable_lf_delimiter"`
	InputName               string           `koanf:"input_name"`
	BindRuleset             string           `koanf:"bind_ruleset"`
	FlowControl             bool             `koanf:"flow_control"`
	MaxFrameSize            int              `koanf:"max_frame_size"`
	Listeners               []ListenerConfig `koanf:"listeners"`
}

// ListenerConfig is one addInstance declaration: port, bound ruleset,
// input tag, and whether this instance supports octet-counted framing
// auto-detection.
type ListenerConfig struct {
	Port                int    `koanf:"port"`
	BindAddr            string `koanf:"bind_addr"`
	Ruleset             string `koanf:"ruleset"`
	InputName           string `koanf:"input_name"`
	OctetCountedFraming bool   `koanf:"octet_counted_framing"`
}

// RulesetConfig declares a ruleset plus its parser list and optional
// private queue.
type RulesetConfig struct {
	Name    string       `koanf:"name"`
	Parsers []string     `koanf:"parsers"`
	Queue   *QueueConfig `koanf:"queue"`
}

// QueueConfig describes a ruleset's private ingress queue, corresponding
// to the rulesetCreateMainQueue directive.
type QueueConfig struct {
	Capacity                int `koanf:"capacity"`
	LightDelayableThreshold int `koanf:"light_delayable_threshold"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultModuleOptions returns the legacy directive table's documented
// defaults (§6), as they apply immediately after loadBegin /
// resetConfigVariables.
func DefaultModuleOptions() IMTCPConfig {
	return IMTCPConfig{
		MaxSessions:         200,
		MaxListeners:        20,
		KeepAlive:           false,
		OctetCountedFraming: true,
		AddtlFrameDelimiter: -1,
		InputName:           "imtcp",
		BindRuleset:         "",
		FlowControl:         false,
	}
}

// DefaultConfig returns a Config populated with sensible defaults for
// every section, including the legacy directive table's defaults.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8443",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		IMTCP: DefaultModuleOptions(),
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for imtcpd configuration.
// Variables are named IMTCPD_<section>_<key>, e.g. IMTCPD_IMTCP_MAX_SESSIONS.
const envPrefix = "IMTCPD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (IMTCPD_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms IMTCPD_IMTCP_MAX_SESSIONS -> imtcp.max_sessions.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":                       defaults.Admin.Addr,
		"metrics.addr":                     defaults.Metrics.Addr,
		"metrics.path":                     defaults.Metrics.Path,
		"log.level":                        defaults.Log.Level,
		"log.format":                       defaults.Log.Format,
		"imtcp.max_sessions":               defaults.IMTCP.MaxSessions,
		"imtcp.max_listeners":              defaults.IMTCP.MaxListeners,
		"imtcp.keep_alive":                 defaults.IMTCP.KeepAlive,
		"imtcp.octet_counted_framing":      defaults.IMTCP.OctetCountedFraming,
		"imtcp.addtl_frame_delimiter":      defaults.IMTCP.AddtlFrameDelimiter,
		"imtcp.input_name":                defaults.IMTCP.InputName,
		"imtcp.flow_control":               defaults.IMTCP.FlowControl,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

var (
	ErrEmptyAdminAddr      = errors.New("admin.addr must not be empty")
	ErrNoListeners         = errors.New("imtcp: no listener instances declared")
	ErrInvalidMaxSessions  = errors.New("imtcp.max_sessions must be > 0")
	ErrInvalidMaxListeners = errors.New("imtcp.max_listeners must be > 0")
	ErrDuplicateRuleset    = errors.New("duplicate ruleset name")
	ErrEmptyRulesetName    = errors.New("ruleset name must not be empty")
)

// Validate checks the configuration for logical errors, returning the
// first one encountered. NO_LISTENERS is surfaced as ErrNoListeners.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}
	if cfg.IMTCP.MaxSessions <= 0 {
		return ErrInvalidMaxSessions
	}
	if cfg.IMTCP.MaxListeners <= 0 {
		return ErrInvalidMaxListeners
	}
	if len(cfg.IMTCP.Listeners) == 0 {
		return ErrNoListeners
	}

	seen := make(map[string]struct{}, len(cfg.Rulesets))
	for i, rs := range cfg.Rulesets {
		if rs.Name == "" {
			return fmt.Errorf("rulesets[%d]: %w", i, ErrEmptyRulesetName)
		}
		key := strings.ToLower(rs.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("rulesets[%d] name %q: %w", i, rs.Name, ErrDuplicateRuleset)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
