package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

// Raw* types mirror the file layout with pointer fields so an explicit zero
// (poll_interval_s: 0, netlink: false) can be told apart from an absent key.

type RawMutation struct {
	BusyPolicy       *string `yaml:"busy_policy"`
	MaxAttempts      *int    `yaml:"max_attempts"`
	BackoffMs        *int    `yaml:"backoff_ms"`
	MaxBackoffMs     *int    `yaml:"max_backoff_ms"`
	SettleMs         *int    `yaml:"settle_ms"`
	VerifyAttempts   *int    `yaml:"verify_attempts"`
	AttemptTimeoutMs *int    `yaml:"attempt_timeout_ms"`
}

type RawEvents struct {
	DebounceMs    *int  `yaml:"debounce_ms"`
	PollIntervalS *int  `yaml:"poll_interval_s"`
	Netlink       *bool `yaml:"netlink"`
}

type RawDDC struct {
	Enabled      *bool   `yaml:"enabled"`
	WriteDelayMs *int    `yaml:"write_delay_ms"`
	ReadDelayMs  *int    `yaml:"read_delay_ms"`
	Retries      *int    `yaml:"retries"`
	SysfsRoot    *string `yaml:"sysfs_root"`
}

type RawBacklight struct {
	Enabled *bool   `yaml:"enabled"`
	Root    *string `yaml:"root"`
}

type RawIdentify struct {
	DurationMs *int `yaml:"duration_ms"`
}

type RawHTTP struct {
	Listen *string `yaml:"listen"`
}

type RawFake struct {
	Monitors  *int `yaml:"monitors"`
	LatencyMs *int `yaml:"latency_ms"`
}

type RawConfig struct {
	Include IncludeList `yaml:"include"`

	Backend   *string       `yaml:"backend"`
	Display   *string       `yaml:"display"`
	LogLevel  *string       `yaml:"log_level"`
	Mutation  *RawMutation  `yaml:"mutation"`
	Events    *RawEvents    `yaml:"events"`
	DDC       *RawDDC       `yaml:"ddc"`
	Backlight *RawBacklight `yaml:"backlight"`
	Identify  *RawIdentify  `yaml:"identify"`
	HTTP      *RawHTTP      `yaml:"http"`
	Fake      *RawFake      `yaml:"fake"`
}

// merge overlays the keys set in overlay onto c.
func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c
	out.Include = nil

	pick(&out.Backend, overlay.Backend)
	pick(&out.Display, overlay.Display)
	pick(&out.LogLevel, overlay.LogLevel)

	if overlay.Mutation != nil {
		m := RawMutation{}
		if out.Mutation != nil {
			m = *out.Mutation
		}
		pick(&m.BusyPolicy, overlay.Mutation.BusyPolicy)
		pick(&m.MaxAttempts, overlay.Mutation.MaxAttempts)
		pick(&m.BackoffMs, overlay.Mutation.BackoffMs)
		pick(&m.MaxBackoffMs, overlay.Mutation.MaxBackoffMs)
		pick(&m.SettleMs, overlay.Mutation.SettleMs)
		pick(&m.VerifyAttempts, overlay.Mutation.VerifyAttempts)
		pick(&m.AttemptTimeoutMs, overlay.Mutation.AttemptTimeoutMs)
		out.Mutation = &m
	}
	if overlay.Events != nil {
		e := RawEvents{}
		if out.Events != nil {
			e = *out.Events
		}
		pick(&e.DebounceMs, overlay.Events.DebounceMs)
		pick(&e.PollIntervalS, overlay.Events.PollIntervalS)
		pick(&e.Netlink, overlay.Events.Netlink)
		out.Events = &e
	}
	if overlay.DDC != nil {
		d := RawDDC{}
		if out.DDC != nil {
			d = *out.DDC
		}
		pick(&d.Enabled, overlay.DDC.Enabled)
		pick(&d.WriteDelayMs, overlay.DDC.WriteDelayMs)
		pick(&d.ReadDelayMs, overlay.DDC.ReadDelayMs)
		pick(&d.Retries, overlay.DDC.Retries)
		pick(&d.SysfsRoot, overlay.DDC.SysfsRoot)
		out.DDC = &d
	}
	if overlay.Backlight != nil {
		b := RawBacklight{}
		if out.Backlight != nil {
			b = *out.Backlight
		}
		pick(&b.Enabled, overlay.Backlight.Enabled)
		pick(&b.Root, overlay.Backlight.Root)
		out.Backlight = &b
	}
	if overlay.Identify != nil {
		i := RawIdentify{}
		if out.Identify != nil {
			i = *out.Identify
		}
		pick(&i.DurationMs, overlay.Identify.DurationMs)
		out.Identify = &i
	}
	if overlay.HTTP != nil {
		h := RawHTTP{}
		if out.HTTP != nil {
			h = *out.HTTP
		}
		pick(&h.Listen, overlay.HTTP.Listen)
		out.HTTP = &h
	}
	if overlay.Fake != nil {
		f := RawFake{}
		if out.Fake != nil {
			f = *out.Fake
		}
		pick(&f.Monitors, overlay.Fake.Monitors)
		pick(&f.LatencyMs, overlay.Fake.LatencyMs)
		out.Fake = &f
	}
	return out
}

func pick[T any](dst **T, overlay *T) {
	if overlay != nil {
		*dst = overlay
	}
}
