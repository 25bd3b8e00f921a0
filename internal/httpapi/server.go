// Package httpapi serves read-only monitor state over HTTP and streams
// topology events over a WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/service"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Config configures the HTTP endpoint.
type Config struct {
	Listen string
	Logger *slog.Logger
}

// Server exposes the service over HTTP.
type Server struct {
	svc      *service.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server. Call Start to begin listening.
func New(svc *service.Service, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHost,
		},
	}
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// RegisterRoutes wires the API and event stream onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/monitors", s.handleMonitors)
	mux.HandleFunc("GET /api/monitors/{ref}", s.handleMonitor)
	mux.HandleFunc("GET /ws/events", s.handleEvents)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("http api listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server. Open event streams are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// handleMonitors returns the current snapshot. ?refresh=1 enumerates first.
func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	snap, err := s.svc.EnumerateMonitors(r.Context(), refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Monitor(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleEvents upgrades to a WebSocket and writes one JSON message per
// topology event until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.svc.Subscribe()
	defer unsubscribe()
	s.logger.Debug("event stream attached", "remote", r.RemoteAddr)

	// The read loop only handles control frames; it ends when the peer closes.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			s.logger.Debug("event stream detached", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

type errorResponse struct {
	Error    string       `json:"error"`
	Kind     display.Kind `json:"kind"`
	DeviceID string       `json:"device_id,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Kind: display.KindOf(err)}
	var de *display.Error
	if errors.As(err, &de) {
		resp.DeviceID = de.DeviceID
	}
	writeJSON(w, statusFor(resp.Kind), resp)
}

func statusFor(kind display.Kind) int {
	switch kind {
	case display.KindInvalidRequest:
		return http.StatusBadRequest
	case display.KindDeviceGone:
		return http.StatusNotFound
	case display.KindUnsupported:
		return http.StatusNotImplemented
	case display.KindBusy:
		return http.StatusConflict
	case display.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sameHost accepts requests without an Origin header (non-browser clients)
// and browser requests whose Origin host matches the Host header.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
