// Package daemon wires the display control service together and runs it
// until the context is cancelled.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/monctl/internal/config"
	"github.com/1broseidon/monctl/internal/coordinator"
	"github.com/1broseidon/monctl/internal/events"
	"github.com/1broseidon/monctl/internal/httpapi"
	"github.com/1broseidon/monctl/internal/ipc"
	"github.com/1broseidon/monctl/internal/platform"
	"github.com/1broseidon/monctl/internal/registry"
	"github.com/1broseidon/monctl/internal/service"
)

// staleRefreshDelay is how long the daemon waits after a device stops
// answering before the first re-enumeration, so a monitor mid power-cycle
// can settle. Repeated reports back off from here.
const staleRefreshDelay = 2 * time.Second

// Options configures a Daemon.
type Options struct {
	// ConfigPath overrides the standard config location.
	ConfigPath string
	// SocketPath overrides the IPC socket location.
	SocketPath string
	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

// Daemon owns every long-lived component.
type Daemon struct {
	opts   Options
	level  *slog.LevelVar
	logger *slog.Logger

	mu  sync.Mutex
	cfg *config.Config

	provider   platform.Provider
	registry   *registry.Registry
	coord      *coordinator.Coordinator
	hub        *events.Hub
	bridge     *events.Bridge
	svc        *service.Service
	ipc        *ipc.Server
	http       *httpapi.Server
	reconciler *Reconciler
	stale      *staleRetry
}

// New loads the configuration and opens the display backend.
func New(ctx context.Context, opts Options) (*Daemon, error) {
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.LogLevel))
	logger := slog.New(slog.NewTextHandler(opts.LogOutput, &slog.HandlerOptions{Level: level}))

	provider, err := platform.New(ctx, platformOptions(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open display backend: %w", err)
	}

	d := &Daemon{
		opts:     opts,
		level:    level,
		logger:   logger,
		cfg:      cfg,
		provider: provider,
		hub:      events.NewHub(),
	}

	d.registry = registry.New(provider, registry.Config{
		ReadTimeout: config.Millis(cfg.Mutation.AttemptTimeoutMs),
		Logger:      logger,
	})
	d.coord = coordinator.New(d.registry, coordinatorConfig(cfg, logger))

	var sources []events.Source
	if es, ok := provider.(platform.EventSourcer); ok {
		sources = es.Sources()
	}
	d.bridge = events.NewBridge(d.registry, d.hub, events.BridgeConfig{
		Debounce: config.Millis(cfg.Events.DebounceMs),
		Logger:   logger,
	}, sources...)

	d.stale = newStaleRetry(staleRefreshDelay, d.registry.Current, d.bridge.Notify, logger)
	d.registry.OnStale(d.stale.Trigger)

	d.svc = service.New(provider, d.registry, d.coord, d.hub, service.Config{
		IdentifyDuration: config.Millis(cfg.Identify.DurationMs),
		Logger:           logger,
	})

	d.ipc, err = ipc.NewServer(d.svc, ipc.ServerConfig{
		SocketPath: opts.SocketPath,
		Reload:     d.Reload,
		Logger:     logger,
	})
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to create IPC server: %w", err)
	}

	if listen := strings.TrimSpace(cfg.HTTP.Listen); listen != "" {
		d.http = httpapi.New(d.svc, httpapi.Config{Listen: listen, Logger: logger})
	}
	if interval := cfg.PollInterval(); interval > 0 {
		d.reconciler = NewReconciler(ReconcilerConfig{
			Interval: interval,
			Logger:   logger,
		}, d.registry, d.hub)
	}
	return d, nil
}

// Service returns the service the front-ends talk to.
func (d *Daemon) Service() *service.Service {
	return d.svc
}

// SocketPath returns the IPC socket path.
func (d *Daemon) SocketPath() string {
	return d.ipc.SocketPath()
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Run enumerates monitors, starts every front-end and blocks until ctx is
// cancelled. SIGHUP reloads the configuration.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.provider.Close()

	if snap, err := d.registry.Refresh(ctx); err != nil {
		d.logger.Warn("initial enumeration failed", "error", err)
	} else {
		d.logger.Info("monitors enumerated", "backend", d.provider.Name(), "count", len(snap.Monitors))
	}

	if err := d.ipc.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	defer d.ipc.Stop()

	if d.http != nil {
		if err := d.http.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP API: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := d.http.Shutdown(shutdownCtx); err != nil {
				d.logger.Warn("http api shutdown failed", "error", err)
			}
		}()
	}
	defer d.stale.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.bridge.Run(gctx)
	})
	if d.reconciler != nil {
		g.Go(func() error {
			d.reconciler.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		d.handleSignals(gctx)
		return nil
	})

	d.logger.Info("monctl daemon started", "socket", d.ipc.SocketPath())
	err := g.Wait()
	d.logger.Info("monctl daemon stopping")
	return err
}

func (d *Daemon) handleSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			d.logger.Info("received SIGHUP, reloading config")
			if err := d.Reload(ctx); err != nil {
				d.logger.Error("config reload failed", "error", err)
			}
		}
	}
}

// Reload re-reads the configuration and applies what can change at runtime:
// the log level, mutation policy and retry tuning. Backend, event and HTTP
// settings take effect on restart.
func (d *Daemon) Reload(ctx context.Context) error {
	next, err := loadConfig(d.opts.ConfigPath)
	if err != nil {
		return err
	}

	d.mu.Lock()
	prev := d.cfg
	d.cfg = next
	d.mu.Unlock()

	d.level.Set(ParseLevel(next.LogLevel))
	d.coord.Reconfigure(coordinatorConfig(next, d.logger))

	if restartRequired(prev, next) {
		d.logger.Warn("backend, event or http settings changed; restart the daemon to apply them")
	}
	d.logger.Info("config reloaded",
		"busy_policy", next.Mutation.BusyPolicy,
		"log_level", next.LogLevel)
	return nil
}

func restartRequired(prev, next *config.Config) bool {
	return prev.Backend != next.Backend ||
		prev.Display != next.Display ||
		prev.Events != next.Events ||
		prev.DDC != next.DDC ||
		prev.Backlight != next.Backlight ||
		prev.HTTP != next.HTTP ||
		prev.Fake != next.Fake
}

func loadConfig(path string) (*config.Config, error) {
	var (
		res *config.LoadResult
		err error
	)
	if path == "" {
		res, err = config.LoadWithSources()
	} else {
		res, err = config.LoadFromPath(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return res.Config, nil
}

// ParseLevel maps a config log level to a slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func platformOptions(cfg *config.Config, logger *slog.Logger) platform.Options {
	return platform.Options{
		Backend:       cfg.Backend,
		Display:       cfg.Display,
		DDC:           cfg.DDC.Enabled,
		DDCSysfsRoot:  cfg.DDC.SysfsRoot,
		DDCWriteDelay: config.Millis(cfg.DDC.WriteDelayMs),
		DDCReadDelay:  config.Millis(cfg.DDC.ReadDelayMs),
		DDCRetries:    cfg.DDC.Retries,
		Backlight:     cfg.Backlight.Enabled,
		BacklightRoot: cfg.Backlight.Root,
		Uevents:       cfg.Events.Netlink,
		FakeMonitors:  cfg.Fake.Monitors,
		FakeLatency:   config.Millis(cfg.Fake.LatencyMs),
		Logger:        logger,
	}
}

func coordinatorConfig(cfg *config.Config, logger *slog.Logger) coordinator.Config {
	// Validated config only carries queue or reject.
	policy, _ := coordinator.ParsePolicy(cfg.Mutation.BusyPolicy)
	return coordinator.Config{
		Policy:         policy,
		MaxAttempts:    cfg.Mutation.MaxAttempts,
		BaseBackoff:    config.Millis(cfg.Mutation.BackoffMs),
		MaxBackoff:     config.Millis(cfg.Mutation.MaxBackoffMs),
		SettleDelay:    config.Millis(cfg.Mutation.SettleMs),
		VerifyAttempts: cfg.Mutation.VerifyAttempts,
		AttemptTimeout: config.Millis(cfg.Mutation.AttemptTimeoutMs),
		Logger:         logger,
	}
}
