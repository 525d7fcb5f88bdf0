package lifecycle

import "context"

// ManualEventSource is a ProcessEventSource fed by explicit Emit calls.
// The real process-launch/termination notification source is OS-specific
// and out of scope for this module (spec.md §1); this implementation lets
// the composition root and tests drive the Lifecycle Manager without one.
type ManualEventSource struct {
	events chan ProcessEvent
}

// NewManualEventSource returns a ManualEventSource with the given channel
// buffer depth.
func NewManualEventSource(buffer int) *ManualEventSource {
	if buffer <= 0 {
		buffer = 16
	}
	return &ManualEventSource{events: make(chan ProcessEvent, buffer)}
}

// Subscribe implements ProcessEventSource.
func (s *ManualEventSource) Subscribe(ctx context.Context) (<-chan ProcessEvent, error) {
	return s.events, nil
}

// Emit delivers evt to the subscriber. Safe to call from any goroutine.
func (s *ManualEventSource) Emit(evt ProcessEvent) {
	s.events <- evt
}
