package mcp

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/monctl/internal/coordinator"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
	"github.com/1broseidon/monctl/internal/ipc"
	"github.com/1broseidon/monctl/internal/platform"
	"github.com/1broseidon/monctl/internal/registry"
	"github.com/1broseidon/monctl/internal/service"
)

func newDaemonServer(t *testing.T) (*Server, *platform.FakeProvider) {
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

	client := ipc.NewClientAt(socket)
	client.SetTimeout(5 * time.Second)
	return NewServer(client, nil), provider
}

func TestListMonitorsTool(t *testing.T) {
	s, _ := newDaemonServer(t)

	_, out, err := s.handleListMonitors(context.Background(), nil, ListMonitorsInput{Refresh: true})
	if err != nil {
		t.Fatalf("list_monitors: %v", err)
	}
	if len(out.Monitors) != 2 || out.Generation == 0 {
		t.Fatalf("output = %+v, want 2 monitors", out)
	}
	first := out.Monitors[0]
	if first.Index != 1 || first.ID != "FAKE-1" || !first.Primary {
		t.Fatalf("first = %+v", first)
	}
	if first.Resolution != "1920x1080" || first.RefreshHz != 60 || first.Scale != 125 {
		t.Fatalf("first mode/scale = %s@%d %d%%", first.Resolution, first.RefreshHz, first.Scale)
	}
	if first.Brightness == nil || *first.Brightness != 50 {
		t.Fatalf("brightness = %v, want 50", first.Brightness)
	}
	if first.Input != display.InputLabel(0x0F) || len(first.Inputs) != 3 {
		t.Fatalf("input = %q inputs = %v", first.Input, first.Inputs)
	}
}

func TestMutationTools(t *testing.T) {
	s, provider := newDaemonServer(t)
	ctx := context.Background()

	_, out, err := s.handleSetBrightness(ctx, nil, SetBrightnessInput{Monitor: "2", Percent: 30})
	if err != nil {
		t.Fatalf("set_brightness: %v", err)
	}
	if out.Monitor.ID != "FAKE-2" || out.Monitor.Index != 2 || *out.Monitor.Brightness != 30 {
		t.Fatalf("set_brightness output = %+v", out.Monitor)
	}
	if out.RequestID == "" || out.Attempts < 1 {
		t.Fatalf("missing request metadata: %+v", out)
	}

	if _, _, err := s.handleSetResolution(ctx, nil, SetResolutionInput{Monitor: "FAKE-1", Width: 2560, Height: 1440}); err != nil {
		t.Fatalf("set_resolution: %v", err)
	}
	if got := provider.Monitor("FAKE-1").State().Current; got.Width != 2560 || got.Height != 1440 {
		t.Fatalf("mode = %+v, want 2560x1440", got)
	}

	if _, _, err := s.handleSetInputSource(ctx, nil, SetInputSourceInput{Monitor: "FAKE-1", Input: "hdmi1"}); err != nil {
		t.Fatalf("set_input_source: %v", err)
	}
	_, in, err := s.handleGetInputSource(ctx, nil, MonitorRefInput{Monitor: "FAKE-1"})
	if err != nil {
		t.Fatalf("get_input_source: %v", err)
	}
	if in.Code != 0x11 || in.Label != display.InputLabel(0x11) {
		t.Fatalf("get_input_source = %+v, want 0x11", in)
	}

	_, ident, err := s.handleIdentify(ctx, nil, IdentifyInput{})
	if err != nil {
		t.Fatalf("identify_monitors: %v", err)
	}
	if provider.Identified() != 1 || len(ident.Monitors) != 2 {
		t.Fatalf("identify = %+v after %d calls", ident, provider.Identified())
	}
}

func TestToolErrorsCarryKind(t *testing.T) {
	s, provider := newDaemonServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		kind display.Kind
	}{
		{"bad orientation", func() error {
			_, _, err := s.handleSetOrientation(ctx, nil, SetOrientationInput{Monitor: "FAKE-1", Degrees: 45})
			return err
		}, display.KindInvalidRequest},
		{"unknown monitor", func() error {
			_, _, err := s.handleGetMonitor(ctx, nil, MonitorRefInput{Monitor: "HDMI-7"})
			return err
		}, display.KindDeviceGone},
		{"unadvertised input", func() error {
			_, _, err := s.handleSetInputSource(ctx, nil, SetInputSourceInput{Monitor: "FAKE-1", Input: "usbc"})
			return err
		}, display.KindInvalidRequest},
		{"unsupported hdr", func() error {
			provider.Monitor("FAKE-2").Disable(display.AttrHDR)
			_, _, err := s.handleSetHDR(ctx, nil, SetHDRInput{Monitor: "FAKE-2", Enabled: true})
			return err
		}, display.KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := display.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %s, want %s (err %v)", got, tt.kind, err)
			}
			if !strings.Contains(err.Error(), "["+string(tt.kind)+"]") {
				t.Fatalf("error %q does not name kind %s", err, tt.kind)
			}
		})
	}
}

func TestRequiredArguments(t *testing.T) {
	s := NewServer(stubController{}, nil)
	ctx := context.Background()

	if _, _, err := s.handleSetPower(ctx, nil, SetPowerInput{}); err == nil {
		t.Fatalf("expected missing monitor error")
	}
	if _, _, err := s.handleSetResolution(ctx, nil, SetResolutionInput{Monitor: "1"}); err == nil {
		t.Fatalf("expected missing width/height error")
	}
	if _, _, err := s.handleSetInputSource(ctx, nil, SetInputSourceInput{Monitor: "1"}); err == nil {
		t.Fatalf("expected missing input error")
	}
}

func TestToolsOverSession(t *testing.T) {
	s, _ := newDaemonServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := s.mcpServer.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer ss.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	want := []string{
		"get_input_source", "get_monitor", "identify_monitors", "list_monitors",
		"set_brightness", "set_hdr", "set_input_source", "set_orientation",
		"set_power", "set_resolution", "set_scale",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("tools = %v, want %v", names, want)
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "set_scale",
		Arguments: map[string]any{"monitor": "FAKE-2", "percent": 150},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("set_scale returned tool error: %+v", res.Content)
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "set_scale",
		Arguments: map[string]any{"monitor": "FAKE-2", "percent": 137},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for unsupported scale")
	}
}

type stubController struct{}

var errStub = errors.New("stub")

func (stubController) ListMonitors(bool) (*display.Snapshot, error) { return nil, errStub }
func (stubController) GetMonitor(string) (*display.Monitor, error)  { return nil, errStub }
func (stubController) SetResolution(string, int, int, int) (*service.Result, error) {
	return nil, errStub
}
func (stubController) SetBrightness(string, int) (*service.Result, error)  { return nil, errStub }
func (stubController) SetScale(string, int) (*service.Result, error)       { return nil, errStub }
func (stubController) SetOrientation(string, int) (*service.Result, error) { return nil, errStub }
func (stubController) SetPower(string, bool) (*service.Result, error)      { return nil, errStub }
func (stubController) SetHDR(string, bool) (*service.Result, error)        { return nil, errStub }
func (stubController) SetInput(string, string) (*service.Result, error)    { return nil, errStub }
func (stubController) GetInput(string) (*ipc.InputData, error)             { return nil, errStub }
func (stubController) Identify() error                                     { return errStub }
