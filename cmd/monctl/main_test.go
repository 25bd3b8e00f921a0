package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/monctl/internal/coordinator"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
	"github.com/1broseidon/monctl/internal/ipc"
	"github.com/1broseidon/monctl/internal/platform"
	"github.com/1broseidon/monctl/internal/registry"
	"github.com/1broseidon/monctl/internal/service"
)

func startFakeDaemon(t *testing.T) (string, *platform.FakeProvider) {
	t.Helper()
	provider := platform.NewFakeProvider(2)
	reg := registry.New(provider, registry.Config{})
	coord := coordinator.New(reg, coordinator.Config{SettleDelay: time.Millisecond, BaseBackoff: time.Millisecond})
	svc := service.New(provider, reg, coord, events.NewHub(), service.Config{})

	socket := filepath.Join(t.TempDir(), "monctl.sock")
	srv, err := ipc.NewServer(svc, ipc.ServerConfig{SocketPath: socket})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return socket, provider
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListPlainOutput(t *testing.T) {
	socket, _ := startFakeDaemon(t)

	out, err := run(t, "--socket", socket, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("list printed %d lines, want header + 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "#\tID\tNAME") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "FAKE-1") || !strings.Contains(lines[1], "1920x1080@60Hz") || !strings.Contains(lines[1], "125%") {
		t.Fatalf("first row = %q", lines[1])
	}
}

func TestListJSONAndDetails(t *testing.T) {
	socket, _ := startFakeDaemon(t)

	out, err := run(t, "--socket", socket, "--json", "list", "--refresh")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var snap display.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(snap.Monitors) != 2 {
		t.Fatalf("monitors = %d, want 2", len(snap.Monitors))
	}

	out, err = run(t, "--socket", socket, "list", "-m", "2")
	if err != nil {
		t.Fatalf("list -m: %v", err)
	}
	if !strings.Contains(out, "FAKE-2") || !strings.Contains(out, "Writable") {
		t.Fatalf("details = %s", out)
	}
}

func TestSetCommands(t *testing.T) {
	socket, provider := startFakeDaemon(t)

	tests := []struct {
		args  []string
		want  string
		check func(display.Monitor) bool
	}{
		{[]string{"set-brightness", "-m", "FAKE-1", "--percent", "70"}, "brightness 70%",
			func(m display.Monitor) bool { return m.Brightness.Percent == 70 }},
		{[]string{"set-resolution", "-m", "1", "--mode", "3840x2160@60"}, "resolution 3840x2160",
			func(m display.Monitor) bool { return m.Current.Width == 3840 }},
		{[]string{"set-scale", "-m", "FAKE-1", "--percent", "150"}, "scale 150%",
			func(m display.Monitor) bool { return m.Scale == 150 }},
		{[]string{"set-orientation", "-m", "FAKE-1", "--degrees", "90"}, "orientation 90°",
			func(m display.Monitor) bool { return m.Orientation == display.Portrait }},
		{[]string{"set-input", "-m", "FAKE-1", "--input", "hdmi2"}, "input ",
			func(m display.Monitor) bool { return m.Input.Code == 0x12 }},
		{[]string{"set-power", "-m", "FAKE-1", "--state", "off"}, "power off",
			func(m display.Monitor) bool { return m.Power == display.PowerOff }},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			out, err := run(t, append([]string{"--socket", socket}, tt.args...)...)
			if err != nil {
				t.Fatalf("%v: %v", tt.args, err)
			}
			if !strings.Contains(out, tt.want) || !strings.Contains(out, "FAKE-1") {
				t.Fatalf("output = %q, want %q", out, tt.want)
			}
			if state := provider.Monitor("FAKE-1").State(); !tt.check(state) {
				t.Fatalf("hardware state not updated: %+v", state)
			}
		})
	}
}

func TestSetCommandErrors(t *testing.T) {
	socket, _ := startFakeDaemon(t)

	tests := []struct {
		args []string
		code int
	}{
		{[]string{"set-brightness", "-m", "FAKE-1", "--percent", "140"}, 2},
		{[]string{"set-input", "-m", "FAKE-1", "--input", "usbc"}, 2},
		{[]string{"set-power", "-m", "FAKE-1", "--state", "maybe"}, 2},
		{[]string{"get-input", "-m", "DP-9"}, 5},
		{[]string{"set-resolution", "-m", "FAKE-1"}, 2},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			_, err := run(t, append([]string{"--socket", socket}, tt.args...)...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := exitCode(err); got != tt.code {
				t.Fatalf("exitCode(%v) = %d, want %d", err, got, tt.code)
			}
		})
	}
}

func TestMonitorFlagRequired(t *testing.T) {
	if _, err := run(t, "get-brightness"); err == nil || !strings.Contains(err.Error(), "monitor") {
		t.Fatalf("expected required flag error, got %v", err)
	}
}

func TestReadCommands(t *testing.T) {
	socket, _ := startFakeDaemon(t)

	out, err := run(t, "--socket", socket, "get-brightness", "-m", "1")
	if err != nil || strings.TrimSpace(out) != "50%" {
		t.Fatalf("get-brightness = %q, %v", out, err)
	}
	out, err = run(t, "--socket", socket, "get-input", "-m", "1")
	if err != nil || !strings.Contains(out, "(0x0F)") {
		t.Fatalf("get-input = %q, %v", out, err)
	}
	out, err = run(t, "--socket", socket, "get-caps", "-m", "1")
	if err != nil || !strings.Contains(out, "60(0F 11 12)") || !strings.Contains(out, "inputs:") {
		t.Fatalf("get-caps = %q, %v", out, err)
	}
	out, err = run(t, "--socket", socket, "status")
	if err != nil || !strings.Contains(out, "backend:     fake") {
		t.Fatalf("status = %q, %v", out, err)
	}
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("backend: fake\nmutation:\n  busy_policy: reject\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := run(t, "config", "validate", "--path", path)
	if err != nil || !strings.Contains(out, "config: ok") {
		t.Fatalf("validate = %q, %v", out, err)
	}

	out, err = run(t, "config", "explain", "--path", path, "mutation.busy_policy")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if !strings.Contains(out, "source: file:") || !strings.Contains(out, ":3:") || !strings.Contains(out, "reject") {
		t.Fatalf("explain = %q", out)
	}

	out, err = run(t, "config", "print", "--defaults")
	if err != nil || !strings.Contains(out, "busy_policy: queue") {
		t.Fatalf("print --defaults = %q, %v", out, err)
	}

	if err := os.WriteFile(path, []byte("backend: wayland\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run(t, "config", "validate", "--path", path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    display.Mode
		wantErr bool
	}{
		{"2560x1440", display.Mode{Width: 2560, Height: 1440}, false},
		{"1920X1080@144", display.Mode{Width: 1920, Height: 1080, RefreshHz: 144}, false},
		{"3840x2160@60Hz", display.Mode{Width: 3840, Height: 2160, RefreshHz: 60}, false},
		{"2560", display.Mode{}, true},
		{"0x1080", display.Mode{}, true},
		{"1920x1080@fast", display.Mode{}, true},
	}
	for _, tt := range tests {
		got, err := parseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseMode(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		kind display.Kind
		want int
	}{
		{display.KindInvalidRequest, 2},
		{display.KindUnsupported, 3},
		{display.KindBusy, 4},
		{display.KindTransient, 4},
		{display.KindDeviceGone, 5},
		{display.KindVerificationMismatch, 6},
		{display.KindFailed, 1},
	}
	for _, tt := range tests {
		err := display.Errorf(tt.kind, "op", "dev", "boom")
		if got := exitCode(err); got != tt.want {
			t.Fatalf("exitCode(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	ev := events.Event{
		Type:     events.TopologyChanged,
		Time:     time.Now(),
		Snapshot: &display.Snapshot{Generation: 4, Monitors: make([]display.Monitor, 3)},
		Added:    []string{"DP-2"},
		Removed:  []string{"HDMI-1"},
	}
	got := formatEvent(ev)
	for _, want := range []string{events.TopologyChanged, "generation=4", "monitors=3", "added=DP-2", "removed=HDMI-1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("formatEvent() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "changed=") {
		t.Fatalf("formatEvent() = %q, unexpected changed field", got)
	}
}
