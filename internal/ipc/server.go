package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/monctl/internal/ddc"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/runtimepath"
	"github.com/1broseidon/monctl/internal/service"
)

const requestReadTimeout = 10 * time.Second

// ServerConfig configures the IPC server. An empty SocketPath uses the
// runtime socket location; a nil Reload makes RELOAD report unsupported.
type ServerConfig struct {
	SocketPath string
	Reload     func(ctx context.Context) error
	Logger     *slog.Logger
}

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	svc          *service.Service
	reload       func(ctx context.Context) error
	logger       *slog.Logger
	startTime    time.Time
	ctx          context.Context
	cancel       context.CancelFunc
	conns        sync.WaitGroup
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(svc *service.Service, cfg ServerConfig) (*Server, error) {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		var err error
		socketPath, err = runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		svc:        svc,
		reload:     cfg.Reload,
		logger:     logger,
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection serves one request per connection. WATCH keeps the
// connection open until the client hangs up or the server stops.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Debug("IPC read error", "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	req, err := ParseRequest(data)
	if err != nil {
		s.send(conn, NewErrorResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	if req.Command == CommandWatch {
		// The subscription ends when the client hangs up.
		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()
		go func() {
			_, _ = io.Copy(io.Discard, reader)
			cancel()
		}()
		s.handleWatch(ctx, conn)
		return
	}

	s.send(conn, s.handleCommand(s.ctx, req))
}

func (s *Server) send(conn net.Conn, resp *Response) bool {
	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return false
	}
	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Debug("failed to send response", "error", err)
		return false
	}
	return true
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(ctx context.Context, req *Request) *Response {
	switch req.Command {
	case CommandReload:
		return s.handleReload(ctx)
	case CommandGetStatus:
		return s.handleGetStatus()
	case CommandListMonitors:
		return s.handleListMonitors(ctx, req.Payload)
	case CommandGetMonitor:
		return s.handleGetMonitor(ctx, req.Payload)
	case CommandSetResolution:
		return s.handleSetResolution(ctx, req.Payload)
	case CommandSetBrightness:
		return s.handleValue(ctx, req.Payload, s.svc.SetBrightness)
	case CommandSetScale:
		return s.handleValue(ctx, req.Payload, s.svc.SetScale)
	case CommandSetOrientation:
		return s.handleValue(ctx, req.Payload, s.svc.SetOrientation)
	case CommandSetPower:
		return s.handleToggle(ctx, req.Payload, s.svc.SetPower)
	case CommandSetHDR:
		return s.handleToggle(ctx, req.Payload, s.svc.SetHDR)
	case CommandSetInput:
		return s.handleSetInput(ctx, req.Payload)
	case CommandGetBrightness:
		return s.handleGetBrightness(ctx, req.Payload)
	case CommandGetInput:
		return s.handleGetInput(ctx, req.Payload)
	case CommandGetCaps:
		return s.handleGetCaps(ctx, req.Payload)
	case CommandIdentify:
		return s.handleIdentify(ctx)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleReload(ctx context.Context) *Response {
	s.logger.Info("IPC: received RELOAD command")
	if s.reload == nil {
		return NewFailureResponse(display.Errorf(display.KindUnsupported, "reload", "", "reload is not configured"))
	}
	if err := s.reload(ctx); err != nil {
		return NewFailureResponse(fmt.Errorf("failed to reload config: %w", err))
	}
	return ok(nil)
}

func (s *Server) handleGetStatus() *Response {
	st := s.svc.Status()
	return ok(StatusData{
		Backend:       st.Backend,
		Generation:    st.Generation,
		TakenAt:       st.TakenAt,
		Monitors:      st.Monitors,
		BusyPolicy:    st.BusyPolicy,
		Subscribers:   st.Subscribers,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		DaemonRunning: true,
	})
}

func (s *Server) handleListMonitors(ctx context.Context, payload json.RawMessage) *Response {
	var req ListMonitorsPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return NewErrorResponse(fmt.Sprintf("Invalid list payload: %v", err))
		}
	}
	snap, err := s.svc.EnumerateMonitors(ctx, req.Refresh)
	if err != nil {
		return NewFailureResponse(err)
	}
	return ok(snap)
}

func (s *Server) handleGetMonitor(ctx context.Context, payload json.RawMessage) *Response {
	var req MonitorPayload
	if resp := decode(payload, &req, "monitor"); resp != nil {
		return resp
	}
	m, err := s.svc.Monitor(ctx, req.Monitor)
	if err != nil {
		return NewFailureResponse(err)
	}
	return ok(m)
}

func (s *Server) handleSetResolution(ctx context.Context, payload json.RawMessage) *Response {
	var req ResolutionPayload
	if resp := decode(payload, &req, "resolution"); resp != nil {
		return resp
	}
	return result(s.svc.SetResolution(ctx, req.Monitor, req.Width, req.Height, req.RefreshHz))
}

func (s *Server) handleValue(ctx context.Context, payload json.RawMessage, set func(context.Context, string, int) (*service.Result, error)) *Response {
	var req ValuePayload
	if resp := decode(payload, &req, "value"); resp != nil {
		return resp
	}
	return result(set(ctx, req.Monitor, req.Value))
}

func (s *Server) handleToggle(ctx context.Context, payload json.RawMessage, set func(context.Context, string, bool) (*service.Result, error)) *Response {
	var req TogglePayload
	if resp := decode(payload, &req, "toggle"); resp != nil {
		return resp
	}
	return result(set(ctx, req.Monitor, req.Enable))
}

func (s *Server) handleSetInput(ctx context.Context, payload json.RawMessage) *Response {
	var req InputPayload
	if resp := decode(payload, &req, "input"); resp != nil {
		return resp
	}
	code, err := display.ParseInput(req.Input)
	if err != nil {
		return NewFailureResponse(&display.Error{Kind: display.KindInvalidRequest, Op: "set_input", DeviceID: req.Monitor, Err: err})
	}
	return result(s.svc.SetInputSource(ctx, req.Monitor, code))
}

func (s *Server) handleGetBrightness(ctx context.Context, payload json.RawMessage) *Response {
	var req MonitorPayload
	if resp := decode(payload, &req, "monitor"); resp != nil {
		return resp
	}
	b, err := s.svc.GetBrightness(ctx, req.Monitor)
	if err != nil {
		return NewFailureResponse(err)
	}
	id, _ := s.svc.Resolve(req.Monitor)
	return ok(BrightnessData{Monitor: id, Percent: b.Percent})
}

func (s *Server) handleGetInput(ctx context.Context, payload json.RawMessage) *Response {
	var req MonitorPayload
	if resp := decode(payload, &req, "monitor"); resp != nil {
		return resp
	}
	code, err := s.svc.GetInputSource(ctx, req.Monitor)
	if err != nil {
		return NewFailureResponse(err)
	}
	id, _ := s.svc.Resolve(req.Monitor)
	return ok(InputData{Monitor: id, Code: code, Label: display.InputLabel(code)})
}

func (s *Server) handleGetCaps(ctx context.Context, payload json.RawMessage) *Response {
	var req MonitorPayload
	if resp := decode(payload, &req, "monitor"); resp != nil {
		return resp
	}
	caps, err := s.svc.GetCapabilities(ctx, req.Monitor)
	if err != nil {
		return NewFailureResponse(err)
	}
	id, _ := s.svc.Resolve(req.Monitor)
	return ok(CapabilitiesData{Monitor: id, Capabilities: caps, Inputs: ddc.InputsFromCapabilities(caps)})
}

func (s *Server) handleIdentify(ctx context.Context) *Response {
	if err := s.svc.IdentifyMonitors(ctx); err != nil {
		return NewFailureResponse(err)
	}
	return ok(nil)
}

// handleWatch acknowledges the subscription and then writes one event per
// line. A write error means the client went away.
func (s *Server) handleWatch(ctx context.Context, conn net.Conn) {
	events, unsubscribe := s.svc.Subscribe()
	defer unsubscribe()

	if !s.send(conn, ok(nil)) {
		return
	}
	s.logger.Debug("IPC: watch subscriber attached")

	enc := json.NewEncoder(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := enc.Encode(ev); err != nil {
				s.logger.Debug("IPC: watch subscriber detached", "error", err)
				return
			}
		}
	}
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.conns.Wait()
	os.Remove(s.socketPath)
}

func ok(data interface{}) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewFailureResponse(err)
	}
	return resp
}

func result(res *service.Result, err error) *Response {
	if err != nil {
		return NewFailureResponse(err)
	}
	return ok(res)
}

func decode(payload json.RawMessage, v interface{}, what string) *Response {
	if len(payload) == 0 {
		return NewErrorResponse(fmt.Sprintf("Missing %s payload", what))
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid %s payload: %v", what, err))
	}
	return nil
}
