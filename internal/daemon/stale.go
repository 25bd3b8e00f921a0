package daemon

import (
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/monctl/internal/display"
)

const (
	staleRetryMax   = 2 * time.Minute
	staleRetryLimit = 6
)

// staleRetry schedules re-enumeration for monitors published as stale. Each
// consecutive stale report for a device doubles the delay, and after
// staleRetryLimit reports it stops scheduling until the device has been seen
// trusted again.
type staleRetry struct {
	base    time.Duration
	max     time.Duration
	limit   int
	current func() *display.Snapshot
	refresh func()
	logger  *slog.Logger

	mu       sync.Mutex
	attempts map[string]int
	timer    *time.Timer
	stopped  bool
}

func newStaleRetry(base time.Duration, current func() *display.Snapshot, refresh func(), logger *slog.Logger) *staleRetry {
	return &staleRetry{
		base:     base,
		max:      staleRetryMax,
		limit:    staleRetryLimit,
		current:  current,
		refresh:  refresh,
		logger:   logger,
		attempts: make(map[string]int),
	}
}

// Trigger records a stale report for id and schedules a refresh unless one
// is already pending or id has used up its retries.
func (s *staleRetry) Trigger(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.forgetRecovered()

	n := s.attempts[id] + 1
	s.attempts[id] = n
	if n > s.limit {
		if n == s.limit+1 {
			s.logger.Warn("monitor still inconsistent, no further automatic refresh", "device_id", id, "attempts", s.limit)
		}
		return
	}
	if s.timer != nil {
		return
	}
	delay := s.delay(n)
	s.logger.Info("device stopped responding, scheduling refresh", "device_id", id, "attempt", n, "delay", delay)
	s.timer = time.AfterFunc(delay, s.fire)
}

// Attempts returns the consecutive stale reports recorded for id.
func (s *staleRetry) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

// Pending reports whether a refresh is scheduled.
func (s *staleRetry) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Stop cancels any pending refresh. Later triggers are ignored.
func (s *staleRetry) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *staleRetry) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.refresh()
}

func (s *staleRetry) delay(attempt int) time.Duration {
	d := s.base
	for i := 1; i < attempt && d < s.max; i++ {
		d *= 2
	}
	return min(d, s.max)
}

// forgetRecovered drops counters for devices that are gone or trusted again.
func (s *staleRetry) forgetRecovered() {
	snap := s.current()
	for id := range s.attempts {
		if m, ok := snap.Monitor(id); !ok || !m.Stale {
			delete(s.attempts, id)
		}
	}
}
