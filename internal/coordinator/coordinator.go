// Package coordinator applies configuration changes to monitors one at a
// time per device, retrying transient failures and reconciling the registry
// after every attempt.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
)

// Policy decides what happens to a request for a device that already has
// a mutation in flight.
type Policy string

const (
	// PolicyQueue waits for the in-flight mutation to finish.
	PolicyQueue Policy = "queue"
	// PolicyReject fails fast with a Busy error.
	PolicyReject Policy = "reject"
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyQueue, "":
		return PolicyQueue, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("invalid busy policy %q (expected queue or reject)", s)
}

const (
	DefaultMaxAttempts    = 3
	DefaultBaseBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultSettleDelay    = 250 * time.Millisecond
	DefaultVerifyAttempts = 2
	DefaultAttemptTimeout = 3 * time.Second
)

// Backoff returns the delay before retry number attempt (1-based) with the
// default schedule: 100ms, 200ms, 400ms ... capped at 2s.
func Backoff(attempt int) time.Duration {
	return backoff(DefaultBaseBackoff, DefaultMaxBackoff, attempt)
}

func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}

// State is the lifecycle position of a (device, attribute) pair.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateApplying    State = "applying"
	StateReconciling State = "reconciling"
	StateFailed      State = "failed"
)

// Request is one configuration change. Value must have the type matching
// Attribute: display.Mode (RefreshHz 0 selects the highest rate) for mode,
// int percent for brightness and scale, display.Orientation,
// display.PowerState, bool for HDR and uint8 for input.
type Request struct {
	DeviceID  string
	Attribute display.Attribute
	Value     any
}

// Result is returned for a verified mutation.
type Result struct {
	RequestID string            `json:"request_id"`
	Attempts  int               `json:"attempts"`
	Monitor   display.Monitor   `json:"monitor"`
	Snapshot  *display.Snapshot `json:"snapshot,omitempty"`
}

// Registry is the part of the monitor registry the coordinator needs.
type Registry interface {
	Current() *display.Snapshot
	Monitor(id string) (display.Monitor, bool)
	Channel(id string) (channel.Channel, bool)
	Refresh(ctx context.Context) (*display.Snapshot, error)
	RefreshMonitor(ctx context.Context, id string) (display.Monitor, error)
	ReadError(id string, attr display.Attribute) error
}

// Config tunes retries, verification and the busy policy.
type Config struct {
	Policy         Policy
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	SettleDelay    time.Duration
	VerifyAttempts int
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

// DefaultConfig returns the default coordinator settings.
func DefaultConfig() Config {
	return Config{
		Policy:         PolicyQueue,
		MaxAttempts:    DefaultMaxAttempts,
		BaseBackoff:    DefaultBaseBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		SettleDelay:    DefaultSettleDelay,
		VerifyAttempts: DefaultVerifyAttempts,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Coordinator serializes mutations per device. Different devices proceed
// in parallel.
type Coordinator struct {
	registry Registry
	config   Config
	logger   *slog.Logger

	mu     sync.Mutex
	locks  map[string]chan struct{}
	states map[stateKey]State
}

type stateKey struct {
	device string
	attr   display.Attribute
}

// New creates a coordinator. Zero config fields take their defaults.
func New(registry Registry, config Config) *Coordinator {
	config = normalize(config)
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		config:   config,
		logger:   logger,
		locks:    make(map[string]chan struct{}),
		states:   make(map[stateKey]State),
	}
}

func normalize(config Config) Config {
	def := DefaultConfig()
	if config.Policy == "" {
		config.Policy = def.Policy
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = def.BaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.SettleDelay < 0 {
		config.SettleDelay = 0
	}
	if config.VerifyAttempts <= 0 {
		config.VerifyAttempts = def.VerifyAttempts
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = def.AttemptTimeout
	}
	return config
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Reconfigure replaces the retry, verification and busy settings. Each phase
// of an in-flight request reads them once. The logger is fixed at
// construction.
func (c *Coordinator) Reconfigure(config Config) {
	config = normalize(config)
	c.mu.Lock()
	defer c.mu.Unlock()
	config.Logger = c.config.Logger
	c.config = config
}

// State returns the current state of (id, attr).
func (c *Coordinator) State(id string, attr display.Attribute) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[stateKey{id, attr}]; ok {
		return s
	}
	return StateIdle
}

func (c *Coordinator) setState(id string, attr display.Attribute, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == StateIdle {
		delete(c.states, stateKey{id, attr})
		return
	}
	c.states[stateKey{id, attr}] = s
}

// Apply validates, applies and verifies req.
func (c *Coordinator) Apply(ctx context.Context, req Request) (*Result, error) {
	requestID := uuid.NewString()
	op := "set_" + string(req.Attribute)
	log := c.logger.With(
		"request_id", requestID,
		"device_id", req.DeviceID,
		"attribute", req.Attribute,
	)

	// Invalid requests fail before queueing. State is only tracked for the
	// request holding the device lock.
	if _, _, _, err := c.validate(req); err != nil {
		log.Info("mutation rejected", "kind", display.KindOf(err), "error", err)
		return nil, err
	}

	release, err := c.acquire(ctx, req.DeviceID)
	if err != nil {
		log.Info("mutation not started", "kind", display.KindOf(err), "error", err)
		return nil, err
	}
	defer release()

	// The monitor may have changed while this request waited for the lock.
	c.setState(req.DeviceID, req.Attribute, StateValidating)
	_, ch, target, err := c.validate(req)
	if err != nil {
		c.setState(req.DeviceID, req.Attribute, StateIdle)
		log.Info("mutation rejected", "kind", display.KindOf(err), "error", err)
		return nil, err
	}

	log.Debug("applying", "value", target)
	attempts, applyErr := c.applyWithRetry(ctx, ch, req, target, log)

	c.setState(req.DeviceID, req.Attribute, StateReconciling)
	mon, verifyErr := c.reconcile(ctx, req, target, applyErr == nil, log)
	c.setState(req.DeviceID, req.Attribute, StateIdle)

	if applyErr != nil {
		log.Warn("mutation failed", "attempts", attempts, "kind", display.KindOf(applyErr), "error", applyErr)
		return nil, display.Wrap(applyErr, op, req.DeviceID)
	}
	if verifyErr != nil {
		log.Warn("mutation not verified", "attempts", attempts, "kind", display.KindOf(verifyErr), "error", verifyErr)
		return nil, verifyErr
	}
	log.Info("mutation applied", "attempts", attempts)
	return &Result{
		RequestID: requestID,
		Attempts:  attempts,
		Monitor:   mon,
		Snapshot:  c.registry.Current(),
	}, nil
}

func (c *Coordinator) acquire(ctx context.Context, id string) (func(), error) {
	cfg := c.Config()
	c.mu.Lock()
	lock, ok := c.locks[id]
	if !ok {
		lock = make(chan struct{}, 1)
		c.locks[id] = lock
	}
	c.mu.Unlock()

	release := func() { <-lock }
	if cfg.Policy == PolicyReject {
		select {
		case lock <- struct{}{}:
			return release, nil
		default:
			return nil, display.Errorf(display.KindBusy, "acquire", id, "another change is in progress")
		}
	}
	select {
	case lock <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, display.Wrap(ctx.Err(), "acquire", id)
	}
}

// applyWithRetry calls the channel until it succeeds, fails definitively or
// runs out of attempts. Each hardware call runs to completion even when ctx
// is cancelled; cancellation is honored between attempts.
func (c *Coordinator) applyWithRetry(ctx context.Context, ch channel.Channel, req Request, target any, log *slog.Logger) (int, error) {
	cfg := c.Config()
	for attempt := 1; ; attempt++ {
		c.setState(req.DeviceID, req.Attribute, StateApplying)

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.AttemptTimeout)
		err := invoke(callCtx, ch, req.Attribute, target)
		cancel()
		if err == nil {
			return attempt, nil
		}

		c.setState(req.DeviceID, req.Attribute, StateFailed)
		kind := display.KindOf(err)
		log.Warn("apply attempt failed", "attempt", attempt, "kind", kind, "error", err)
		if kind != display.KindTransient || attempt >= cfg.MaxAttempts {
			return attempt, err
		}

		wait := backoff(cfg.BaseBackoff, cfg.MaxBackoff, attempt)
		if err := sleep(ctx, wait); err != nil {
			return attempt, display.Wrap(err, "retry", req.DeviceID)
		}
	}
}

func invoke(ctx context.Context, ch channel.Channel, attr display.Attribute, target any) error {
	switch attr {
	case display.AttrMode:
		return ch.SetMode(ctx, target.(display.Mode))
	case display.AttrBrightness:
		return ch.SetBrightness(ctx, target.(int))
	case display.AttrScale:
		return ch.SetScale(ctx, target.(int))
	case display.AttrOrientation:
		return ch.SetOrientation(ctx, target.(display.Orientation))
	case display.AttrPower:
		return ch.SetPower(ctx, target.(display.PowerState))
	case display.AttrHDR:
		return ch.SetHDR(ctx, target.(bool))
	case display.AttrInput:
		return ch.SetInputSource(ctx, target.(uint8))
	}
	return display.Errorf(display.KindInvalidRequest, "apply", "", "unknown attribute %q", attr)
}

// reconcile re-reads the monitor after the settle delay. When the apply
// succeeded the read-back must match the target within VerifyAttempts.
func (c *Coordinator) reconcile(ctx context.Context, req Request, target any, applied bool, log *slog.Logger) (display.Monitor, error) {
	cfg := c.Config()
	// The registry must catch up with the hardware even if the caller left.
	budget := cfg.SettleDelay*time.Duration(cfg.VerifyAttempts) + 2*cfg.AttemptTimeout
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	if !applied {
		if _, err := c.registry.RefreshMonitor(rctx, req.DeviceID); err != nil {
			log.Debug("reconcile after failure", "error", err)
			if display.KindOf(err) == display.KindDeviceGone {
				_, _ = c.registry.Refresh(rctx)
			}
		}
		return display.Monitor{}, nil
	}

	var mon display.Monitor
	var readErr error
	for attempt := 1; attempt <= cfg.VerifyAttempts; attempt++ {
		if err := sleep(rctx, cfg.SettleDelay); err != nil {
			return mon, display.Wrap(err, "verify", req.DeviceID)
		}
		var err error
		mon, err = c.registry.RefreshMonitor(rctx, req.DeviceID)
		if err != nil {
			if display.KindOf(err) == display.KindDeviceGone {
				_, _ = c.registry.Refresh(rctx)
			}
			return mon, display.Wrap(err, "verify", req.DeviceID)
		}
		if readErr = c.registry.ReadError(req.DeviceID, req.Attribute); readErr != nil {
			log.Debug("read-back failed", "attempt", attempt, "error", readErr)
			continue
		}
		if matches(mon, req.Attribute, target) {
			return mon, nil
		}
		log.Debug("read-back differs", "attempt", attempt, "value", readBack(mon, req.Attribute))
	}
	if readErr != nil {
		return mon, display.Errorf(display.KindTransient, "verify", req.DeviceID,
			"%s could not be read back: %v", req.Attribute, readErr)
	}
	return mon, display.Errorf(display.KindVerificationMismatch, "verify", req.DeviceID,
		"%s reads back %v, want %v", req.Attribute, readBack(mon, req.Attribute), target)
}

func matches(m display.Monitor, attr display.Attribute, target any) bool {
	switch attr {
	case display.AttrMode:
		return m.Current == target.(display.Mode)
	case display.AttrBrightness:
		// Percent to VCP scaling can round by one step.
		if !m.Brightness.Supported {
			return false
		}
		d := m.Brightness.Percent - target.(int)
		return d >= -1 && d <= 1
	case display.AttrScale:
		return m.Scale == target.(int)
	case display.AttrOrientation:
		return m.Orientation == target.(display.Orientation)
	case display.AttrPower:
		return m.Power == target.(display.PowerState)
	case display.AttrHDR:
		return (m.HDR == display.HDROn) == target.(bool) && m.HDR != display.HDRUnsupported
	case display.AttrInput:
		return m.Input.Supported && m.Input.Code == target.(uint8)
	}
	return false
}

func readBack(m display.Monitor, attr display.Attribute) any {
	switch attr {
	case display.AttrMode:
		return m.Current
	case display.AttrBrightness:
		return m.Brightness.Percent
	case display.AttrScale:
		return m.Scale
	case display.AttrOrientation:
		return m.Orientation
	case display.AttrPower:
		return m.Power
	case display.AttrHDR:
		return m.HDR
	case display.AttrInput:
		return display.InputLabel(m.Input.Code)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
