package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by the backend key.
const (
	BackendAuto   = "auto"
	BackendX11    = "x11"
	BackendMutter = "mutter"
	BackendFake   = "fake"
)

// Busy policies accepted by mutation.busy_policy.
const (
	BusyQueue  = "queue"
	BusyReject = "reject"
)

// MutationConfig tunes the per-device mutation coordinator.
type MutationConfig struct {
	BusyPolicy       string `yaml:"busy_policy"`
	MaxAttempts      int    `yaml:"max_attempts"`
	BackoffMs        int    `yaml:"backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms"`
	SettleMs         int    `yaml:"settle_ms"`
	VerifyAttempts   int    `yaml:"verify_attempts"`
	AttemptTimeoutMs int    `yaml:"attempt_timeout_ms"`
}

// EventsConfig controls hardware event handling.
type EventsConfig struct {
	DebounceMs    int  `yaml:"debounce_ms"`
	PollIntervalS int  `yaml:"poll_interval_s"` // 0 disables the safety-net refresh
	Netlink       bool `yaml:"netlink"`
}

// DDCConfig controls the DDC/CI channel.
type DDCConfig struct {
	Enabled      bool   `yaml:"enabled"`
	WriteDelayMs int    `yaml:"write_delay_ms"`
	ReadDelayMs  int    `yaml:"read_delay_ms"`
	Retries      int    `yaml:"retries"`
	SysfsRoot    string `yaml:"sysfs_root,omitempty"`
}

// BacklightConfig controls the built-in panel backlight channel.
type BacklightConfig struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root,omitempty"`
}

// IdentifyConfig controls the identify overlay.
type IdentifyConfig struct {
	DurationMs int `yaml:"duration_ms"`
}

// HTTPConfig controls the optional HTTP/WebSocket endpoint.
type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables
}

// FakeConfig configures the fake backend.
type FakeConfig struct {
	Monitors  int `yaml:"monitors"`
	LatencyMs int `yaml:"latency_ms"`
}

// Config is the effective daemon configuration.
type Config struct {
	Backend   string          `yaml:"backend"`
	Display   string          `yaml:"display"`
	LogLevel  string          `yaml:"log_level"`
	Mutation  MutationConfig  `yaml:"mutation"`
	Events    EventsConfig    `yaml:"events"`
	DDC       DDCConfig       `yaml:"ddc"`
	Backlight BacklightConfig `yaml:"backlight"`
	Identify  IdentifyConfig  `yaml:"identify"`
	HTTP      HTTPConfig      `yaml:"http"`
	Fake      FakeConfig      `yaml:"fake"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:  BackendAuto,
		LogLevel: "info",
		Mutation: MutationConfig{
			BusyPolicy:       BusyQueue,
			MaxAttempts:      3,
			BackoffMs:        100,
			MaxBackoffMs:     2000,
			SettleMs:         250,
			VerifyAttempts:   2,
			AttemptTimeoutMs: 3000,
		},
		Events: EventsConfig{
			DebounceMs:    250,
			PollIntervalS: 30,
			Netlink:       true,
		},
		DDC: DDCConfig{
			Enabled:      true,
			WriteDelayMs: 50,
			ReadDelayMs:  40,
			Retries:      3,
		},
		Backlight: BacklightConfig{
			Enabled: true,
		},
		Identify: IdentifyConfig{
			DurationMs: 2500,
		},
		Fake: FakeConfig{
			Monitors: 2,
		},
	}
}

// Millis converts a millisecond config value to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// PollInterval returns the safety-net refresh interval, zero when disabled.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Events.PollIntervalS) * time.Second
}

// Marshal renders the effective configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Save writes the configuration to path, or the standard location when path
// is empty.
//
// Note: this marshals the effective config and will not preserve comments or
// include structure from the original YAML.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendX11, BackendMutter, BackendFake:
	default:
		return &ValidationError{Path: "backend", Err: fmt.Errorf("backend must be one of: auto, x11, mutter, fake")}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}

	m := c.Mutation
	switch m.BusyPolicy {
	case BusyQueue, BusyReject:
	default:
		return &ValidationError{Path: "mutation.busy_policy", Err: fmt.Errorf("busy_policy must be one of: queue, reject")}
	}
	if m.MaxAttempts < 1 {
		return &ValidationError{Path: "mutation.max_attempts", Err: fmt.Errorf("max_attempts must be >= 1")}
	}
	if m.BackoffMs < 0 {
		return &ValidationError{Path: "mutation.backoff_ms", Err: fmt.Errorf("backoff_ms must be >= 0")}
	}
	if m.MaxBackoffMs < m.BackoffMs {
		return &ValidationError{Path: "mutation.max_backoff_ms", Err: fmt.Errorf("max_backoff_ms must be >= backoff_ms")}
	}
	if m.SettleMs < 0 {
		return &ValidationError{Path: "mutation.settle_ms", Err: fmt.Errorf("settle_ms must be >= 0")}
	}
	if m.VerifyAttempts < 1 {
		return &ValidationError{Path: "mutation.verify_attempts", Err: fmt.Errorf("verify_attempts must be >= 1")}
	}
	if m.AttemptTimeoutMs <= 0 {
		return &ValidationError{Path: "mutation.attempt_timeout_ms", Err: fmt.Errorf("attempt_timeout_ms must be > 0")}
	}

	if c.Events.DebounceMs < 0 {
		return &ValidationError{Path: "events.debounce_ms", Err: fmt.Errorf("debounce_ms must be >= 0")}
	}
	if c.Events.PollIntervalS < 0 {
		return &ValidationError{Path: "events.poll_interval_s", Err: fmt.Errorf("poll_interval_s must be >= 0")}
	}

	if c.DDC.WriteDelayMs < 0 || c.DDC.ReadDelayMs < 0 {
		return &ValidationError{Path: "ddc", Err: fmt.Errorf("ddc delays must be >= 0")}
	}
	if c.DDC.Retries < 1 {
		return &ValidationError{Path: "ddc.retries", Err: fmt.Errorf("retries must be >= 1")}
	}

	if c.Identify.DurationMs <= 0 || c.Identify.DurationMs > 60000 {
		return &ValidationError{Path: "identify.duration_ms", Err: fmt.Errorf("duration_ms must be between 1 and 60000")}
	}
	if listen := strings.TrimSpace(c.HTTP.Listen); listen != "" && !strings.Contains(listen, ":") {
		return &ValidationError{Path: "http.listen", Err: fmt.Errorf("listen must be host:port, got %q", c.HTTP.Listen)}
	}
	if c.Fake.Monitors < 1 || c.Fake.Monitors > 16 {
		return &ValidationError{Path: "fake.monitors", Err: fmt.Errorf("monitors must be between 1 and 16")}
	}
	if c.Fake.LatencyMs < 0 {
		return &ValidationError{Path: "fake.latency_ms", Err: fmt.Errorf("latency_ms must be >= 0")}
	}
	return nil
}
