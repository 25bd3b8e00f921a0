// Package events turns raw hardware notifications into coalesced registry
// refreshes and fans topology changes out to subscribers.
package events

import (
	"sync"
	"time"
)

// Debouncer fires once after a quiet period. Every Trigger restarts the
// timer, so a burst of triggers results in a single fire at its trailing edge.
type Debouncer struct {
	delay time.Duration
	fire  func()

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// NewDebouncer returns a debouncer that calls fire after delay of quiet.
func NewDebouncer(delay time.Duration, fire func()) *Debouncer {
	return &Debouncer{delay: delay, fire: fire}
}

// Trigger records an event and restarts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() { d.run(seq) })
}

func (d *Debouncer) run(seq uint64) {
	d.mu.Lock()
	// A newer trigger superseded this timer after it had already fired.
	if d.stopped || seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fire()
}

// Pending reports whether a fire is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending fire. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
