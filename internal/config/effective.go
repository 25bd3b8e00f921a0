package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BuildEffectiveConfig applies the keys set in raw over DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.Backend != nil {
		cfg.Backend = strings.ToLower(strings.TrimSpace(*raw.Backend))
	}
	if raw.Display != nil {
		cfg.Display = strings.TrimSpace(*raw.Display)
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*raw.LogLevel))
	}

	if m := raw.Mutation; m != nil {
		if m.BusyPolicy != nil {
			cfg.Mutation.BusyPolicy = strings.ToLower(strings.TrimSpace(*m.BusyPolicy))
		}
		cfg.Mutation.MaxAttempts = derefInt(m.MaxAttempts, cfg.Mutation.MaxAttempts)
		cfg.Mutation.BackoffMs = derefInt(m.BackoffMs, cfg.Mutation.BackoffMs)
		cfg.Mutation.MaxBackoffMs = derefInt(m.MaxBackoffMs, cfg.Mutation.MaxBackoffMs)
		cfg.Mutation.SettleMs = derefInt(m.SettleMs, cfg.Mutation.SettleMs)
		cfg.Mutation.VerifyAttempts = derefInt(m.VerifyAttempts, cfg.Mutation.VerifyAttempts)
		cfg.Mutation.AttemptTimeoutMs = derefInt(m.AttemptTimeoutMs, cfg.Mutation.AttemptTimeoutMs)
	}

	if e := raw.Events; e != nil {
		cfg.Events.DebounceMs = derefInt(e.DebounceMs, cfg.Events.DebounceMs)
		cfg.Events.PollIntervalS = derefInt(e.PollIntervalS, cfg.Events.PollIntervalS)
		cfg.Events.Netlink = derefBool(e.Netlink, cfg.Events.Netlink)
	}

	if d := raw.DDC; d != nil {
		cfg.DDC.Enabled = derefBool(d.Enabled, cfg.DDC.Enabled)
		cfg.DDC.WriteDelayMs = derefInt(d.WriteDelayMs, cfg.DDC.WriteDelayMs)
		cfg.DDC.ReadDelayMs = derefInt(d.ReadDelayMs, cfg.DDC.ReadDelayMs)
		cfg.DDC.Retries = derefInt(d.Retries, cfg.DDC.Retries)
		if d.SysfsRoot != nil {
			cfg.DDC.SysfsRoot = strings.TrimSpace(*d.SysfsRoot)
		}
	}

	if b := raw.Backlight; b != nil {
		cfg.Backlight.Enabled = derefBool(b.Enabled, cfg.Backlight.Enabled)
		if b.Root != nil {
			cfg.Backlight.Root = strings.TrimSpace(*b.Root)
		}
	}

	if i := raw.Identify; i != nil {
		cfg.Identify.DurationMs = derefInt(i.DurationMs, cfg.Identify.DurationMs)
	}
	if h := raw.HTTP; h != nil && h.Listen != nil {
		cfg.HTTP.Listen = strings.TrimSpace(*h.Listen)
	}
	if f := raw.Fake; f != nil {
		cfg.Fake.Monitors = derefInt(f.Monitors, cfg.Fake.Monitors)
		cfg.Fake.LatencyMs = derefInt(f.LatencyMs, cfg.Fake.LatencyMs)
	}

	return cfg, nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func derefBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
