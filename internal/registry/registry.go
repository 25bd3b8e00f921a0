// Package registry holds the authoritative view of attached monitors as a
// sequence of immutable snapshots.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/platform"
)

// Config tunes refresh behavior.
type Config struct {
	// ReadTimeout bounds each live attribute read.
	ReadTimeout time.Duration
	// RefreshTimeout bounds a coalesced enumeration, which outlives the
	// context of whichever caller started it.
	RefreshTimeout time.Duration
	// Parallelism caps concurrent per-monitor reads. Zero means unlimited.
	Parallelism int
	Logger      *slog.Logger
}

// Registry publishes snapshots built from a platform provider. Readers never
// block on I/O; writers go through Refresh or RefreshMonitor.
type Registry struct {
	provider platform.Provider
	config   Config
	logger   *slog.Logger

	current atomic.Pointer[display.Snapshot]
	group   singleflight.Group

	commitMu sync.Mutex
	channels map[string]channel.Channel
	readErrs map[string]readErrors

	hookMu  sync.Mutex
	onStale func(id string)
}

// New returns a registry with an empty generation-zero snapshot.
func New(provider platform.Provider, config Config) *Registry {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 2 * time.Second
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = 15 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		provider: provider,
		config:   config,
		logger:   logger,
		channels: make(map[string]channel.Channel),
		readErrs: make(map[string]readErrors),
	}
	r.current.Store(&display.Snapshot{TakenAt: time.Now()})
	return r
}

// OnStale registers a hook called with the ID of every monitor published
// as stale. The daemon uses it to schedule a follow-up refresh.
func (r *Registry) OnStale(fn func(id string)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onStale = fn
}

// Current returns the latest published snapshot.
func (r *Registry) Current() *display.Snapshot {
	return r.current.Load()
}

// Monitor returns the monitor with id from the latest snapshot.
func (r *Registry) Monitor(id string) (display.Monitor, bool) {
	return r.Current().Monitor(id)
}

// Channel returns the hardware channel bound to id.
func (r *Registry) Channel(id string) (channel.Channel, bool) {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// ReadError returns the error from the most recent failed read of attr on
// id, or nil when the last published read succeeded.
func (r *Registry) ReadError(id string, attr display.Attribute) error {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()
	return r.readErrs[id][attr]
}

// Refresh enumerates all monitors and publishes a new snapshot. Concurrent
// callers share one enumeration.
func (r *Registry) Refresh(ctx context.Context) (*display.Snapshot, error) {
	ch := r.group.DoChan("refresh", func() (any, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.RefreshTimeout)
		defer cancel()
		return r.refresh(workCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*display.Snapshot), nil
	case <-ctx.Done():
		return nil, display.Wrap(ctx.Err(), "refresh", "")
	}
}

func (r *Registry) refresh(ctx context.Context) (*display.Snapshot, error) {
	outs, err := r.provider.Enumerate(ctx)
	if err != nil {
		return nil, display.Wrap(err, "refresh", "")
	}
	// Drivers can report a current mode outside the catalog mid modeset.
	// One more look usually settles it.
	if inconsistent(outs) {
		r.logger.Debug("current mode outside catalog, re-enumerating")
		if again, err := r.provider.Enumerate(ctx); err == nil {
			outs = again
		}
	}

	before := r.Current()
	monitors := make([]display.Monitor, len(outs))
	failures := make([]readErrors, len(outs))
	channels := make(map[string]channel.Channel, len(outs))
	g, gctx := errgroup.WithContext(ctx)
	if r.config.Parallelism > 0 {
		g.SetLimit(r.config.Parallelism)
	}
	for i, o := range outs {
		channels[o.Monitor.ID] = o.Channel
		prior, ok := before.Monitor(o.Monitor.ID)
		if !ok {
			prior = o.Monitor
		}
		g.Go(func() error {
			monitors[i], failures[i] = r.readLive(gctx, o.Monitor, prior, o.Channel)
			return nil
		})
	}
	_ = g.Wait()

	readErrs := make(map[string]readErrors, len(outs))
	for i := range monitors {
		readErrs[monitors[i].ID] = failures[i]
	}

	var stale []string
	for i := range monitors {
		if !monitors[i].HasMode(monitors[i].Current) {
			monitors[i].Stale = true
			stale = append(stale, monitors[i].ID)
		}
	}

	snap := r.commit(func(prev *display.Snapshot) ([]display.Monitor, map[string]channel.Channel) {
		r.readErrs = readErrs
		return monitors, channels
	})
	r.notifyStale(stale)
	return snap, nil
}

// RefreshMonitor re-reads one monitor's state through its channel and
// publishes the result. Attributes whose read fails keep their previous
// value unless the channel reports them unsupported. The readings are
// applied to whatever entry is current at commit, so a full refresh that
// landed in the meantime keeps its catalog and descriptor.
func (r *Registry) RefreshMonitor(ctx context.Context, id string) (display.Monitor, error) {
	prev, ok := r.Monitor(id)
	if !ok {
		return display.Monitor{}, display.Errorf(display.KindDeviceGone, "refresh_monitor", id, "monitor not attached")
	}
	ch, ok := r.Channel(id)
	if !ok {
		return display.Monitor{}, display.Errorf(display.KindDeviceGone, "refresh_monitor", id, "no channel bound")
	}

	read := prev.Clone()
	failed := make(readErrors)
	caps := ch.Capabilities()
	if caps.Has(display.AttrMode) {
		mode, err := r.read(ctx, func(c context.Context) (any, error) { return ch.Mode(c) })
		switch {
		case isGone(err):
			return display.Monitor{}, display.Wrap(err, "refresh_monitor", id)
		case err != nil:
			failed[display.AttrMode] = err
		default:
			read.Current = mode.(display.Mode)
		}
	}
	if caps.Has(display.AttrOrientation) {
		if o, err := r.read(ctx, func(c context.Context) (any, error) { return ch.Orientation(c) }); err == nil {
			read.Orientation = o.(display.Orientation)
		} else {
			failed[display.AttrOrientation] = err
		}
	}
	if caps.Has(display.AttrScale) {
		if s, err := r.read(ctx, func(c context.Context) (any, error) { return ch.Scale(c) }); err == nil {
			read.Scale = s.(int)
		} else {
			failed[display.AttrScale] = err
		}
	}
	read, liveErrs := r.readLive(ctx, read, prev, ch)
	for attr, err := range liveErrs {
		failed[attr] = err
	}

	var next display.Monitor
	var gone bool
	r.commit(func(cur *display.Snapshot) ([]display.Monitor, map[string]channel.Channel) {
		monitors := make([]display.Monitor, 0, len(cur.Monitors))
		found := false
		for _, m := range cur.Monitors {
			if m.ID != id {
				monitors = append(monitors, m)
				continue
			}
			next = overlayLive(m, read)
			monitors = append(monitors, next)
			found = true
		}
		if !found {
			// A full refresh removed it while we were reading.
			gone = true
			return nil, nil
		}
		r.readErrs[id] = failed
		return monitors, nil
	})
	if gone {
		return display.Monitor{}, display.Errorf(display.KindDeviceGone, "refresh_monitor", id, "monitor detached during refresh")
	}
	if next.Stale {
		r.notifyStale([]string{id})
	}
	return next, nil
}

// overlayLive copies the runtime readings of read onto base and rechecks
// base's catalog.
func overlayLive(base, read display.Monitor) display.Monitor {
	out := base.Clone()
	out.Current = read.Current
	out.Orientation = read.Orientation
	out.Scale = read.Scale
	out.Brightness = read.Brightness
	out.Power = read.Power
	out.HDR = read.HDR
	out.Input = read.Input
	out.Stale = !out.HasMode(out.Current)
	return out
}

// commit publishes the monitors returned by build as the next generation.
// build runs under the commit lock with the current snapshot; a nil
// monitor slice aborts the commit. A nil channel map keeps the bindings.
func (r *Registry) commit(build func(cur *display.Snapshot) ([]display.Monitor, map[string]channel.Channel)) *display.Snapshot {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	cur := r.current.Load()
	monitors, channels := build(cur)
	if monitors == nil && channels == nil {
		return cur
	}
	if monitors == nil {
		monitors = []display.Monitor{}
	}
	if channels != nil {
		r.channels = channels
	}
	next := &display.Snapshot{
		Generation: cur.Generation + 1,
		TakenAt:    time.Now(),
		Monitors:   monitors,
	}
	r.current.Store(next)

	diff := display.Compare(cur, next)
	if len(diff.Added) > 0 || len(diff.Removed) > 0 {
		r.logger.Info("monitors changed",
			"generation", next.Generation,
			"added", diff.Added,
			"removed", diff.Removed,
		)
	} else {
		r.logger.Debug("snapshot published", "generation", next.Generation, "changed", diff.Changed)
	}
	return next
}

// readErrors holds the failed reads of one monitor by attribute.
type readErrors map[display.Attribute]error

// readLive fills brightness, power, HDR and input from the channel. A read
// that fails with Unsupported marks the attribute unavailable; any other
// failure keeps the value from prior.
func (r *Registry) readLive(ctx context.Context, m, prior display.Monitor, ch channel.Channel) (display.Monitor, readErrors) {
	m = m.Clone()
	caps := ch.Capabilities()
	m.Capabilities = caps
	failed := make(readErrors)
	fail := func(attr display.Attribute, err error) bool {
		failed[attr] = err
		r.logReadError(m.ID, attr, err)
		return errors.Is(err, display.ErrUnsupported)
	}

	m.Brightness = display.Brightness{}
	if caps.Has(display.AttrBrightness) {
		if v, err := r.read(ctx, func(c context.Context) (any, error) { return ch.Brightness(c) }); err == nil {
			m.Brightness = display.Brightness{Percent: v.(int), Supported: true}
		} else if !fail(display.AttrBrightness, err) {
			m.Brightness = prior.Brightness
		}
	}

	m.Power = display.PowerUnsupported
	if caps.Has(display.AttrPower) {
		if v, err := r.read(ctx, func(c context.Context) (any, error) { return ch.Power(c) }); err == nil {
			m.Power = v.(display.PowerState)
		} else if !fail(display.AttrPower, err) {
			m.Power = prior.Power
			if m.Power != display.PowerOn && m.Power != display.PowerOff {
				m.Power = display.PowerUnknown
			}
		}
	}

	if caps.Has(display.AttrHDR) {
		if v, err := r.read(ctx, func(c context.Context) (any, error) { return ch.HDR(c) }); err == nil {
			m.HDR = display.HDROff
			if v.(bool) {
				m.HDR = display.HDROn
			}
		} else if fail(display.AttrHDR, err) {
			m.HDR = display.HDRUnsupported
		} else if prior.HDR != "" {
			m.HDR = prior.HDR
		}
	} else {
		m.HDR = display.HDRUnsupported
	}

	m.Input = display.Input{}
	if caps.Has(display.AttrInput) {
		if v, err := r.read(ctx, func(c context.Context) (any, error) { return ch.InputSource(c) }); err == nil {
			m.Input = display.Input{Code: v.(uint8), Supported: true}
		} else if !fail(display.AttrInput, err) {
			m.Input = prior.Input
		}
	}
	return m, failed
}

func (r *Registry) read(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	readCtx, cancel := context.WithTimeout(ctx, r.config.ReadTimeout)
	defer cancel()
	return fn(readCtx)
}

func (r *Registry) logReadError(id string, attr display.Attribute, err error) {
	r.logger.Debug("live read failed",
		"device_id", id,
		"attribute", attr,
		"kind", display.KindOf(err),
		"error", err,
	)
}

func (r *Registry) notifyStale(ids []string) {
	if len(ids) == 0 {
		return
	}
	r.logger.Warn("monitor state inconsistent, published as stale", "device_ids", ids)
	r.hookMu.Lock()
	fn := r.onStale
	r.hookMu.Unlock()
	if fn == nil {
		return
	}
	for _, id := range ids {
		fn(id)
	}
}

func inconsistent(outs []platform.Output) bool {
	for _, o := range outs {
		if !o.Monitor.HasMode(o.Monitor.Current) {
			return true
		}
	}
	return false
}

func isGone(err error) bool {
	return err != nil && errors.Is(err, display.ErrDeviceGone)
}
