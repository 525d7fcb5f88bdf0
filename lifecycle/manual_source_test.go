package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestManualEventSource_RunAppliesEmittedEvents(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	source := NewManualEventSource(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, source) }()

	source.Emit(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 11, WindowTitle: "x.go"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.Get(11); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := m.Get(11); !ok {
		t.Fatal("expected instance 11 to be created from emitted event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
