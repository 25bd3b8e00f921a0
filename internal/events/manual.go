package events

import "context"

// ManualSource is a Source driven by explicit Fire calls. The fake provider
// uses it to simulate hotplug.
type ManualSource struct {
	name string
	ch   chan struct{}
}

// NewManualSource returns a manual source with the given name.
func NewManualSource(name string) *ManualSource {
	return &ManualSource{name: name, ch: make(chan struct{}, 64)}
}

func (s *ManualSource) Name() string { return s.name }

// Fire emits one raw notification. It never blocks; excess events are
// dropped since the bridge debounces them anyway.
func (s *ManualSource) Fire() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Run forwards fired events to notify until ctx is done.
func (s *ManualSource) Run(ctx context.Context, notify func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ch:
			notify()
		}
	}
}
