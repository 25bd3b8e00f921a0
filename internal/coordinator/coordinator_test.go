package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/platform"
	"github.com/1broseidon/monctl/internal/registry"
)

type fixture struct {
	provider *platform.FakeProvider
	registry *registry.Registry
	coord    *Coordinator
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	p := platform.NewFakeProvider(2)
	r := registry.New(p, registry.Config{ReadTimeout: time.Second})
	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	c := New(r, Config{
		Policy:         policy,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		SettleDelay:    time.Millisecond,
		AttemptTimeout: time.Second,
	})
	return &fixture{provider: p, registry: r, coord: c}
}

func TestBackoffSchedule(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1600 * time.Millisecond},
		{6, 2 * time.Second},
		{12, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	if DefaultMaxAttempts != 3 {
		t.Errorf("DefaultMaxAttempts = %d, want 3", DefaultMaxAttempts)
	}
	if DefaultSettleDelay != 250*time.Millisecond {
		t.Errorf("DefaultSettleDelay = %v, want 250ms", DefaultSettleDelay)
	}
	if DefaultVerifyAttempts != 2 {
		t.Errorf("DefaultVerifyAttempts = %d, want 2", DefaultVerifyAttempts)
	}
	c := New(nil, Config{})
	if c.Config().Policy != PolicyQueue {
		t.Errorf("default policy = %q, want queue", c.Config().Policy)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyQueue, "queue": PolicyQueue, "reject": PolicyReject} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := ParsePolicy("drop"); err == nil {
		t.Errorf("ParsePolicy(drop) succeeded")
	}
}

func TestApplyResolutionPicksHighestRate(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.Set(func(m *display.Monitor) {
		m.Modes = append(m.Modes, display.Mode{Width: 2560, Height: 1440, BitDepth: 32, RefreshHz: 144})
	})
	if _, err := f.registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	gen := f.registry.Current().Generation

	res, err := f.coord.Apply(context.Background(), Request{
		DeviceID:  "FAKE-1",
		Attribute: display.AttrMode,
		Value:     display.Mode{Width: 2560, Height: 1440},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := display.Mode{Width: 2560, Height: 1440, BitDepth: 32, RefreshHz: 144}
	if res.Monitor.Current != want {
		t.Fatalf("current = %s, want %s", res.Monitor.Current, want)
	}
	if res.RequestID == "" || res.Attempts != 1 {
		t.Fatalf("result = %+v, want request id and 1 attempt", res)
	}
	if res.Snapshot.Generation <= gen {
		t.Fatalf("snapshot generation %d not newer than %d", res.Snapshot.Generation, gen)
	}
	if f.coord.State("FAKE-1", display.AttrMode) != StateIdle {
		t.Fatalf("state after apply = %s, want idle", f.coord.State("FAKE-1", display.AttrMode))
	}
}

func TestApplyResolutionWithDepthPicksRateForThatDepth(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	f.provider.Monitor("FAKE-1").Set(func(m *display.Monitor) {
		m.Modes = append(m.Modes,
			display.Mode{Width: 2560, Height: 1440, BitDepth: 32, RefreshHz: 144},
			display.Mode{Width: 2560, Height: 1440, BitDepth: 30, RefreshHz: 120},
		)
	})
	if _, err := f.registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	res, err := f.coord.Apply(context.Background(), Request{
		DeviceID:  "FAKE-1",
		Attribute: display.AttrMode,
		Value:     display.Mode{Width: 2560, Height: 1440, BitDepth: 30},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := display.Mode{Width: 2560, Height: 1440, BitDepth: 30, RefreshHz: 120}
	if res.Monitor.Current != want {
		t.Fatalf("current = %s, want %s", res.Monitor.Current, want)
	}
}

func TestRefreshRateNotInCatalogMakesNoHardwareCalls(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	before := fm.TotalCalls()

	_, err := f.coord.Apply(context.Background(), Request{
		DeviceID:  "FAKE-1",
		Attribute: display.AttrMode,
		Value:     display.Mode{Width: 1920, Height: 1080, RefreshHz: 144},
	})
	if !errors.Is(err, display.ErrInvalidRequest) {
		t.Fatalf("Apply error = %v, want invalid request", err)
	}
	if got := fm.TotalCalls(); got != before {
		t.Fatalf("hardware calls = %d, want %d (none during validation)", got, before)
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	f.provider.Monitor("FAKE-2").Disable(display.AttrHDR)
	if _, err := f.registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown device", Request{"DP-9", display.AttrBrightness, 50}, display.ErrDeviceGone},
		{"brightness high", Request{"FAKE-1", display.AttrBrightness, 101}, display.ErrInvalidRequest},
		{"brightness negative", Request{"FAKE-1", display.AttrBrightness, -1}, display.ErrInvalidRequest},
		{"brightness wrong type", Request{"FAKE-1", display.AttrBrightness, "50"}, display.ErrInvalidRequest},
		{"resolution unknown", Request{"FAKE-1", display.AttrMode, display.Mode{Width: 800, Height: 600}}, display.ErrInvalidRequest},
		{"scale not listed", Request{"FAKE-1", display.AttrScale, 130}, display.ErrInvalidRequest},
		{"orientation odd", Request{"FAKE-1", display.AttrOrientation, display.Orientation(45)}, display.ErrInvalidRequest},
		{"power standby", Request{"FAKE-1", display.AttrPower, display.PowerState("standby")}, display.ErrInvalidRequest},
		{"input zero", Request{"FAKE-1", display.AttrInput, uint8(0)}, display.ErrInvalidRequest},
		{"input not advertised", Request{"FAKE-1", display.AttrInput, uint8(0x1B)}, display.ErrInvalidRequest},
		{"hdr disabled", Request{"FAKE-2", display.AttrHDR, true}, display.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Apply(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Apply error = %v, want %v", err, tt.want)
			}
		})
	}
	if w := f.provider.Monitor("FAKE-1").Writes(); w != 0 {
		t.Fatalf("writes = %d, want 0 for rejected requests", w)
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.Fail("set_brightness", display.ErrTransient, display.ErrTransient)

	res, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 70})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	if res.Monitor.Brightness.Percent != 70 {
		t.Fatalf("brightness = %d, want 70", res.Monitor.Brightness.Percent)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.Fail("set_brightness", display.ErrTransient, display.ErrTransient, display.ErrTransient, display.ErrTransient)

	_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 70})
	if !errors.Is(err, display.ErrTransient) {
		t.Fatalf("Apply error = %v, want transient", err)
	}
	if got := fm.Calls("set_brightness"); got != DefaultMaxAttempts {
		t.Fatalf("set_brightness calls = %d, want %d", got, DefaultMaxAttempts)
	}
}

func TestDefinitiveFailureNotRetried(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.Fail("set_scale", display.Errorf(display.KindFailed, "set_scale", "FAKE-1", "rejected"))

	_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrScale, 150})
	if !errors.Is(err, display.ErrFailed) {
		t.Fatalf("Apply error = %v, want failed", err)
	}
	if got := fm.Calls("set_scale"); got != 1 {
		t.Fatalf("set_scale calls = %d, want 1", got)
	}
	if f.coord.State("FAKE-1", display.AttrScale) != StateIdle {
		t.Fatalf("state after failure = %s, want idle", f.coord.State("FAKE-1", display.AttrScale))
	}
}

func TestUnreadableReadBackIsTransient(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.Fail("brightness", display.ErrTransient, display.ErrTransient)

	_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 70})
	if !errors.Is(err, display.ErrTransient) {
		t.Fatalf("Apply error = %v, want transient", err)
	}
	mon, _ := f.registry.Monitor("FAKE-1")
	if !mon.Brightness.Supported {
		t.Fatalf("brightness = %+v, want still supported", mon.Brightness)
	}
}

func TestVerificationRecoversAfterReadGlitch(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	f.provider.Monitor("FAKE-1").Fail("brightness", display.ErrTransient)

	res, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 70})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Monitor.Brightness.Percent != 70 {
		t.Fatalf("brightness = %+v, want 70%%", res.Monitor.Brightness)
	}
}

func TestVerificationMismatch(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.Ignore(display.AttrInput)
	reads := fm.Calls("input")

	_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrInput, uint8(0x11)})
	if !errors.Is(err, display.ErrVerificationMismatch) {
		t.Fatalf("Apply error = %v, want verification mismatch", err)
	}
	if got := fm.Calls("input") - reads; got != DefaultVerifyAttempts {
		t.Fatalf("verification reads = %d, want %d", got, DefaultVerifyAttempts)
	}
}

func TestDeviceGoneDuringApply(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	f.provider.Detach("FAKE-2")

	_, err := f.coord.Apply(context.Background(), Request{"FAKE-2", display.AttrBrightness, 30})
	if !errors.Is(err, display.ErrDeviceGone) {
		t.Fatalf("Apply error = %v, want device gone", err)
	}
	if _, ok := f.registry.Monitor("FAKE-2"); ok {
		t.Fatalf("reconciliation did not drop the detached monitor")
	}
}

func TestQueuePolicySerializesSameDevice(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.SetLatency(15 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, v})
			errs <- err
		}(10 + i*10)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if got := fm.Writes(); got != 5 {
		t.Fatalf("writes = %d, want 5", got)
	}
	if got := fm.MaxConcurrentWrites(); got != 1 {
		t.Fatalf("overlapping writes = %d, want 1", got)
	}
}

func TestRejectPolicyReturnsBusy(t *testing.T) {
	f := newFixture(t, PolicyReject)
	fm := f.provider.Monitor("FAKE-1")
	fm.SetLatency(60 * time.Millisecond)

	first := make(chan error, 1)
	go func() {
		_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 20})
		first <- err
	}()
	waitForState(t, f.coord, "FAKE-1", display.AttrBrightness, StateApplying)

	_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 90})
	if !errors.Is(err, display.ErrBusy) {
		t.Fatalf("second Apply error = %v, want busy", err)
	}
	if !display.KindOf(err).Retryable() {
		t.Fatalf("busy should be retryable")
	}
	if err := <-first; err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if got := fm.MaxConcurrentWrites(); got != 1 {
		t.Fatalf("overlapping writes = %d, want 1", got)
	}
	if got := fm.Writes(); got != 1 {
		t.Fatalf("writes = %d, want 1", got)
	}
}

func TestReconfigureSwitchesPolicy(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	logger := f.coord.Config().Logger
	f.coord.Reconfigure(Config{Policy: PolicyReject, MaxAttempts: 5})

	cfg := f.coord.Config()
	if cfg.Policy != PolicyReject || cfg.MaxAttempts != 5 {
		t.Fatalf("Config() = %+v, want reject with 5 attempts", cfg)
	}
	if cfg.VerifyAttempts != DefaultVerifyAttempts || cfg.Logger != logger {
		t.Fatalf("Config() = %+v, want defaults filled and logger kept", cfg)
	}

	fm := f.provider.Monitor("FAKE-1")
	fm.SetLatency(60 * time.Millisecond)
	first := make(chan error, 1)
	go func() {
		_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 20})
		first <- err
	}()
	waitForState(t, f.coord, "FAKE-1", display.AttrBrightness, StateApplying)
	if _, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 90}); !errors.Is(err, display.ErrBusy) {
		t.Fatalf("second Apply error = %v, want busy after reconfigure", err)
	}
	if err := <-first; err != nil {
		t.Fatalf("first Apply: %v", err)
	}
}

func TestDifferentDevicesRunInParallel(t *testing.T) {
	f := newFixture(t, PolicyReject)
	f.provider.Monitor("FAKE-1").SetLatency(60 * time.Millisecond)
	f.provider.Monitor("FAKE-2").SetLatency(60 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 20})
		done <- err
	}()
	waitForState(t, f.coord, "FAKE-1", display.AttrBrightness, StateApplying)

	if _, err := f.coord.Apply(context.Background(), Request{"FAKE-2", display.AttrBrightness, 20}); err != nil {
		t.Fatalf("Apply on other device: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestQueuedRequestHonorsContext(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.SetLatency(150 * time.Millisecond)

	first := make(chan error, 1)
	go func() {
		_, err := f.coord.Apply(context.Background(), Request{"FAKE-1", display.AttrBrightness, 20})
		first <- err
	}()
	waitForState(t, f.coord, "FAKE-1", display.AttrBrightness, StateApplying)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.coord.Apply(ctx, Request{"FAKE-1", display.AttrScale, 150})
	if !errors.Is(err, display.ErrTransient) {
		t.Fatalf("queued Apply error = %v, want transient deadline", err)
	}
	if err := <-first; err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if got := fm.Calls("set_scale"); got != 0 {
		t.Fatalf("set_scale calls = %d, want 0", got)
	}
}

func TestInFlightCallIsWaitedOut(t *testing.T) {
	f := newFixture(t, PolicyQueue)
	fm := f.provider.Monitor("FAKE-1")
	fm.SetLatency(80 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitForState(t, f.coord, "FAKE-1", display.AttrBrightness, StateApplying)
		cancel()
	}()
	start := time.Now()
	_, _ = f.coord.Apply(ctx, Request{"FAKE-1", display.AttrBrightness, 40})
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("Apply returned after %v, before the hardware call finished", elapsed)
	}
	if got := fm.State().Brightness.Percent; got != 40 {
		t.Fatalf("hardware brightness = %d, want 40", got)
	}
}

func waitForState(t *testing.T, c *Coordinator, id string, attr display.Attribute, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State(id, attr) != want {
		if time.Now().After(deadline) {
			t.Errorf("state of %s/%s never reached %s", id, attr, want)
			return
		}
		time.Sleep(time.Millisecond)
	}
}
