package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/service"
)

func (s *Server) handleListMonitors(_ context.Context, _ *mcpsdk.CallToolRequest, args ListMonitorsInput) (*mcpsdk.CallToolResult, ListMonitorsOutput, error) {
	snap, err := s.ctrl.ListMonitors(args.Refresh)
	if err != nil {
		return nil, ListMonitorsOutput{}, toolError("list_monitors", err)
	}
	out := ListMonitorsOutput{
		Generation: snap.Generation,
		Monitors:   make([]MonitorInfo, 0, len(snap.Monitors)),
	}
	for i, m := range snap.Monitors {
		out.Monitors = append(out.Monitors, monitorInfo(i+1, m))
	}
	s.logger.Debug("mcp list_monitors", "count", len(out.Monitors), "generation", out.Generation)
	return nil, out, nil
}

func (s *Server) handleGetMonitor(_ context.Context, _ *mcpsdk.CallToolRequest, args MonitorRefInput) (*mcpsdk.CallToolResult, MonitorInfo, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, MonitorInfo{}, err
	}
	m, err := s.ctrl.GetMonitor(args.Monitor)
	if err != nil {
		return nil, MonitorInfo{}, toolError("get_monitor", err)
	}
	return nil, monitorInfo(s.indexOf(m.ID), *m), nil
}

func (s *Server) handleSetResolution(_ context.Context, _ *mcpsdk.CallToolRequest, args SetResolutionInput) (*mcpsdk.CallToolResult, MutationOutput, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, MutationOutput{}, err
	}
	if args.Width <= 0 || args.Height <= 0 {
		return nil, MutationOutput{}, fmt.Errorf("set_resolution: width and height are required")
	}
	return s.mutation("set_resolution", args.Monitor, func() (*service.Result, error) {
		return s.ctrl.SetResolution(args.Monitor, args.Width, args.Height, args.RefreshHz)
	})
}

func (s *Server) handleSetBrightness(_ context.Context, _ *mcpsdk.CallToolRequest, args SetBrightnessInput) (*mcpsdk.CallToolResult, MutationOutput, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, MutationOutput{}, err
	}
	return s.mutation("set_brightness", args.Monitor, func() (*service.Result, error) {
		return s.ctrl.SetBrightness(args.Monitor, args.Percent)
	})
}

func (s *Server) handleSetScale(_ context.Context, _ *mcpsdk.CallToolRequest, args SetScaleInput) (*mcpsdk.CallToolResult, MutationOutput, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, MutationOutput{}, err
	}
	return s.mutation("set_scale", args.Monitor, func() (*service.Result, error) {
		return s.ctrl.SetScale(args.Monitor, args.Percent)
	})
}

func (s *Server) handleSetOrientation(_ context.Context, _ *mcpsdk.CallToolRequest, args SetOrientationInput) (*mcpsdk.CallToolResult, MutationOutput, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, MutationOutput{}, err
	}
	return s.mutation("set_orientation", args.Monitor, func() (*service.Result, error) {
		return s.ctrl.SetOrientation(args.Monitor, args.Degrees)
	})
}

func (s *Server) handleSetPower(_ context.Context, _ *mcpsdk.CallToolRequest, args SetPowerInput) (*mcpsdk.CallToolResult, MutationOutput, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, MutationOutput{}, err
	}
	return s.mutation("set_power", args.Monitor, func() (*service.Result, error) {
		return s.ctrl.SetPower(args.Monitor, args.On)
	})
}

func (s *Server) handleSetHDR(_ context.Context, _ *mcpsdk.CallToolRequest, args SetHDRInput) (*mcpsdk.CallToolResult, MutationOutput, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, MutationOutput{}, err
	}
	return s.mutation("set_hdr", args.Monitor, func() (*service.Result, error) {
		return s.ctrl.SetHDR(args.Monitor, args.Enabled)
	})
}

func (s *Server) handleSetInputSource(_ context.Context, _ *mcpsdk.CallToolRequest, args SetInputSourceInput) (*mcpsdk.CallToolResult, MutationOutput, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, MutationOutput{}, err
	}
	if args.Input == "" {
		return nil, MutationOutput{}, fmt.Errorf("set_input_source: input is required")
	}
	return s.mutation("set_input_source", args.Monitor, func() (*service.Result, error) {
		return s.ctrl.SetInput(args.Monitor, args.Input)
	})
}

func (s *Server) handleGetInputSource(_ context.Context, _ *mcpsdk.CallToolRequest, args MonitorRefInput) (*mcpsdk.CallToolResult, InputSourceOutput, error) {
	if err := requireMonitor(args.Monitor); err != nil {
		return nil, InputSourceOutput{}, err
	}
	data, err := s.ctrl.GetInput(args.Monitor)
	if err != nil {
		return nil, InputSourceOutput{}, toolError("get_input_source", err)
	}
	return nil, InputSourceOutput{
		Monitor: data.Monitor,
		Code:    int(data.Code),
		Label:   data.Label,
	}, nil
}

func (s *Server) handleIdentify(_ context.Context, _ *mcpsdk.CallToolRequest, _ IdentifyInput) (*mcpsdk.CallToolResult, IdentifyOutput, error) {
	if err := s.ctrl.Identify(); err != nil {
		return nil, IdentifyOutput{}, toolError("identify_monitors", err)
	}
	out := IdentifyOutput{Monitors: []string{}}
	if snap, err := s.ctrl.ListMonitors(false); err == nil {
		for i, m := range snap.Monitors {
			out.Monitors = append(out.Monitors, fmt.Sprintf("%d: %s", i+1, m.ID))
		}
	}
	return nil, out, nil
}

func (s *Server) mutation(tool, ref string, apply func() (*service.Result, error)) (*mcpsdk.CallToolResult, MutationOutput, error) {
	res, err := apply()
	if err != nil {
		s.logger.Info("mcp mutation failed", "tool", tool, "monitor", ref, "error", err)
		return nil, MutationOutput{}, toolError(tool, err)
	}
	s.logger.Info("mcp mutation applied", "tool", tool, "monitor", res.Monitor.ID, "request_id", res.RequestID, "attempts", res.Attempts)
	return nil, MutationOutput{
		RequestID: res.RequestID,
		Attempts:  res.Attempts,
		Monitor:   monitorInfo(s.indexOf(res.Monitor.ID), res.Monitor),
	}, nil
}

// indexOf returns the 1-based position of id in the current snapshot, or 0.
func (s *Server) indexOf(id string) int {
	snap, err := s.ctrl.ListMonitors(false)
	if err != nil {
		return 0
	}
	for i, m := range snap.Monitors {
		if m.ID == id {
			return i + 1
		}
	}
	return 0
}

func requireMonitor(ref string) error {
	if ref == "" {
		return fmt.Errorf("monitor is required")
	}
	return nil
}

// toolError prefixes err with the tool name and failure kind so the model can
// tell a retryable busy or transient error from a permanent one.
func toolError(tool string, err error) error {
	return fmt.Errorf("%s failed [%s]: %w", tool, display.KindOf(err), err)
}

func monitorInfo(index int, m display.Monitor) MonitorInfo {
	info := MonitorInfo{
		Index:        index,
		ID:           m.ID,
		Name:         m.Name,
		FriendlyName: m.FriendlyName,
		Manufacturer: m.Manufacturer,
		Model:        m.Model,
		Serial:       m.Serial,
		Primary:      m.Primary,
		BuiltIn:      m.BuiltIn,
		Connection:   string(m.Connection),
		X:            m.Position.X,
		Y:            m.Position.Y,
		Resolution:   m.Current.Key(),
		RefreshHz:    m.Current.RefreshHz,
		Scale:        m.Scale,
		Scales:       m.Scales,
		Orientation:  int(m.Orientation),
		Power:        string(m.Power),
		HDR:          string(m.HDR),
		Writable:     []string{},
		Stale:        m.Stale,
	}
	if m.MaxNative.Width > 0 {
		info.MaxNative = m.MaxNative.String()
	}
	for _, mode := range m.Modes {
		info.Modes = append(info.Modes, mode.String())
	}
	if m.Brightness.Supported {
		percent := m.Brightness.Percent
		info.Brightness = &percent
	}
	if m.Input.Supported {
		info.Input = display.InputLabel(m.Input.Code)
	}
	for _, code := range m.Inputs {
		info.Inputs = append(info.Inputs, fmt.Sprintf("%s (0x%02X)", display.InputLabel(code), code))
	}
	for _, attr := range m.Capabilities.List() {
		info.Writable = append(info.Writable, string(attr))
	}
	return info
}
