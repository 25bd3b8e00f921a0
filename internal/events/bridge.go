package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/monctl/internal/display"
)

// Source produces raw change notifications from one OS facility.
type Source interface {
	Name() string
	// Run blocks until ctx is done, calling notify for each raw event.
	Run(ctx context.Context, notify func()) error
}

// Refresher is the registry entry point the bridge drives.
type Refresher interface {
	Current() *display.Snapshot
	Refresh(ctx context.Context) (*display.Snapshot, error)
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Debounce       time.Duration
	RefreshTimeout time.Duration
	Logger         *slog.Logger
}

// Bridge debounces notifications from all sources into registry refreshes
// and publishes the outcome on the hub.
type Bridge struct {
	registry Refresher
	hub      *Hub
	sources  []Source
	config   BridgeConfig
	logger   *slog.Logger

	debouncer *Debouncer
	fires     chan struct{}
}

// NewBridge creates a bridge. Sources can also be added with Add before Run.
func NewBridge(registry Refresher, hub *Hub, config BridgeConfig, sources ...Source) *Bridge {
	if config.Debounce <= 0 {
		config.Debounce = 250 * time.Millisecond
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		registry: registry,
		hub:      hub,
		sources:  sources,
		config:   config,
		logger:   logger,
		fires:    make(chan struct{}, 1),
	}
	b.debouncer = NewDebouncer(config.Debounce, func() {
		select {
		case b.fires <- struct{}{}:
		default:
		}
	})
	return b
}

// Add registers another source. Must be called before Run.
func (b *Bridge) Add(src Source) {
	b.sources = append(b.sources, src)
}

// Notify feeds one raw event into the debouncer.
func (b *Bridge) Notify() {
	b.debouncer.Trigger()
}

// Run starts every source and processes debounced refreshes until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, src := range b.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			b.logger.Info("event source started", "source", src.Name())
			if err := src.Run(ctx, b.Notify); err != nil && ctx.Err() == nil {
				b.logger.Warn("event source stopped", "source", src.Name(), "error", err)
			}
		}(src)
	}

	defer func() {
		b.debouncer.Stop()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.fires:
			b.refresh(ctx)
		}
	}
}

func (b *Bridge) refresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event refresh panic recovered", "panic", r)
		}
	}()

	prev := b.registry.Current()
	refreshCtx, cancel := context.WithTimeout(ctx, b.config.RefreshTimeout)
	defer cancel()

	next, err := b.registry.Refresh(refreshCtx)
	if err != nil {
		b.logger.Warn("topology refresh failed", "error", err)
		return
	}

	diff := display.Compare(prev, next)
	b.logger.Info("monitor topology changed",
		"generation", next.Generation,
		"added", diff.Added,
		"removed", diff.Removed,
		"changed", diff.Changed,
	)
	b.hub.Publish(Event{
		Type:     TopologyChanged,
		Time:     time.Now(),
		Snapshot: next,
		Added:    diff.Added,
		Removed:  diff.Removed,
		Changed:  diff.Changed,
	})
}
