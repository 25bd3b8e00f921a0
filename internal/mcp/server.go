package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/ipc"
	"github.com/1broseidon/monctl/internal/service"
)

const (
	ServerName    = "monctl"
	ServerVersion = "0.1.0"
)

// Controller is the daemon surface the tools drive. *ipc.Client satisfies it.
type Controller interface {
	ListMonitors(refresh bool) (*display.Snapshot, error)
	GetMonitor(ref string) (*display.Monitor, error)
	SetResolution(ref string, width, height, hz int) (*service.Result, error)
	SetBrightness(ref string, percent int) (*service.Result, error)
	SetScale(ref string, percent int) (*service.Result, error)
	SetOrientation(ref string, degrees int) (*service.Result, error)
	SetPower(ref string, on bool) (*service.Result, error)
	SetHDR(ref string, enable bool) (*service.Result, error)
	SetInput(ref, input string) (*service.Result, error)
	GetInput(ref string) (*ipc.InputData, error)
	Identify() error
}

var _ Controller = (*ipc.Client)(nil)

// Server is the MCP server for monitor control. Every tool is forwarded to
// the running daemon.
type Server struct {
	mcpServer *mcpsdk.Server
	ctrl      Controller
	logger    *slog.Logger
}

// NewServer creates a new MCP server. A nil ctrl talks to the daemon on the
// default socket.
func NewServer(ctrl Controller, logger *slog.Logger) *Server {
	if ctrl == nil {
		ctrl = ipc.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{ctrl: ctrl, logger: logger}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_monitors",
		Description: "List attached monitors with their index, ID, resolution, refresh rate, scale, orientation, brightness, power, HDR and input source. Pass refresh=true to re-enumerate hardware first.",
	}, s.handleListMonitors)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_monitor",
		Description: "Get the full state of one monitor, including its supported modes, scales, input sources and which attributes are writable.",
	}, s.handleGetMonitor)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_resolution",
		Description: "Change a monitor's resolution and refresh rate. The mode must be one the monitor advertises. Returns after the change is verified.",
	}, s.handleSetResolution)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_brightness",
		Description: "Set a monitor's brightness in percent (0-100) over DDC/CI or the panel backlight.",
	}, s.handleSetBrightness)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_scale",
		Description: "Set a monitor's scale factor in percent. Only the values listed in the monitor's scales are accepted.",
	}, s.handleSetScale)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_orientation",
		Description: "Rotate a monitor to 0, 90, 180 or 270 degrees clockwise.",
	}, s.handleSetOrientation)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_power",
		Description: "Turn a monitor on or put it into standby over DDC/CI.",
	}, s.handleSetPower)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_hdr",
		Description: "Enable or disable HDR on a monitor that supports it.",
	}, s.handleSetHDR)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_input_source",
		Description: "Switch a monitor to another input (HDMI, DisplayPort, USB-C...). The input must be one the monitor advertises. Switching away may make the monitor unreachable until it is switched back.",
	}, s.handleSetInputSource)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_input_source",
		Description: "Read the active input source of a monitor from the hardware.",
	}, s.handleGetInputSource)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "identify_monitors",
		Description: "Show each monitor's index on screen for a few seconds so a person can tell which is which.",
	}, s.handleIdentify)
}
