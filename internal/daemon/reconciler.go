package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
)

// Refresher re-enumerates monitors.
type Refresher interface {
	Current() *display.Snapshot
	Refresh(ctx context.Context) (*display.Snapshot, error)
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically re-enumerates monitors to catch topology changes
// the OS never reported.
type Reconciler struct {
	interval time.Duration
	timeout  time.Duration
	registry Refresher
	hub      *events.Hub
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
// Changes it discovers are published to hub when hub is not nil.
func NewReconciler(cfg ReconcilerConfig, registry Refresher, hub *events.Hub) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval: interval,
		timeout:  timeout,
		registry: registry,
		hub:      hub,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile(ctx context.Context) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prev := r.registry.Current()
	next, err := r.registry.Refresh(ctx)
	if err != nil {
		r.logger.Warn("reconciler: refresh failed", "error", err)
		return
	}

	diff := display.Compare(prev, next)
	if diff.Empty() {
		return
	}
	r.logger.Info("reconciler: topology drift detected",
		"generation", next.Generation,
		"added", diff.Added,
		"removed", diff.Removed,
		"changed", diff.Changed)

	if r.hub != nil {
		r.hub.Publish(events.Event{
			Type:     events.TopologyChanged,
			Time:     time.Now(),
			Snapshot: next,
			Added:    diff.Added,
			Removed:  diff.Removed,
			Changed:  diff.Changed,
		})
	}
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow(ctx context.Context) {
	r.reconcile(ctx)
}
