package lifecycle

import (
	"testing"
	"time"

	"github.com/codeloop/supervisor/core"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type countingListener struct {
	emptyCalls, nonEmptyCalls int
}

func (c *countingListener) OnMonitoredSetEmpty()    { c.emptyCalls++ }
func (c *countingListener) OnMonitoredSetNonEmpty() { c.nonEmptyCalls++ }

func TestManager_LaunchCreatesInstance(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 42, WindowTitle: "main.go"})

	inst, ok := m.Get(42)
	if !ok {
		t.Fatal("expected instance for pid 42")
	}
	if inst.PID != 42 || inst.WindowTitle != "main.go" {
		t.Errorf("instance = %+v, want pid 42 / main.go", inst)
	}
	if inst.Status().Kind != core.StatusUnknown {
		t.Errorf("Status().Kind = %v, want Unknown", inst.Status().Kind)
	}
}

func TestManager_IgnoresOtherBundleIdentifiers(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.other.app", PID: 1})

	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0 for unrelated bundle", m.Count())
	}
}

func TestManager_LaunchIsIdempotentPerPID(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 1, WindowTitle: "first"})
	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 1, WindowTitle: "second"})

	inst, _ := m.Get(1)
	if inst.WindowTitle != "first" {
		t.Errorf("WindowTitle = %q, want unchanged %q", inst.WindowTitle, "first")
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}

func TestManager_TerminateRemovesInstance(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 7})
	m.Apply(ProcessEvent{Kind: ProcessTerminated, BundleIdentifier: "com.example.ide", PID: 7})

	if _, ok := m.Get(7); ok {
		t.Error("expected instance removed after termination")
	}
}

func TestManager_TerminateUnknownPIDIsNoOp(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	m.Apply(ProcessEvent{Kind: ProcessTerminated, BundleIdentifier: "com.example.ide", PID: 999})
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestManager_EmptySetListenerFiresOnTransitions(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	listener := &countingListener{}
	m.SetEmptySetListener(listener)

	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 1})
	if listener.nonEmptyCalls != 1 {
		t.Errorf("nonEmptyCalls = %d, want 1 after first launch", listener.nonEmptyCalls)
	}

	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 2})
	if listener.nonEmptyCalls != 1 {
		t.Errorf("nonEmptyCalls = %d, want still 1 (set was already non-empty)", listener.nonEmptyCalls)
	}

	m.Apply(ProcessEvent{Kind: ProcessTerminated, BundleIdentifier: "com.example.ide", PID: 1})
	if listener.emptyCalls != 0 {
		t.Errorf("emptyCalls = %d, want 0 (one instance remains)", listener.emptyCalls)
	}

	m.Apply(ProcessEvent{Kind: ProcessTerminated, BundleIdentifier: "com.example.ide", PID: 2})
	if listener.emptyCalls != 1 {
		t.Errorf("emptyCalls = %d, want 1 after last instance removed", listener.emptyCalls)
	}
}

func TestManager_MonitoredAppsPreservesLaunchOrder(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 3, WindowTitle: "c.go"})
	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 1, WindowTitle: "a.go"})

	apps := m.MonitoredApps()
	if len(apps) != 2 {
		t.Fatalf("len(apps) = %d, want 2", len(apps))
	}
	if apps[0].PID != 3 || apps[1].PID != 1 {
		t.Errorf("apps = %+v, want launch order [3, 1]", apps)
	}
}

func TestManager_SnapshotIsACopy(t *testing.T) {
	m := New("com.example.ide", &fakeClock{now: time.Now()}, nil)
	m.Apply(ProcessEvent{Kind: ProcessLaunched, BundleIdentifier: "com.example.ide", PID: 1})

	snap := m.Snapshot()
	snap[0] = nil

	again := m.Snapshot()
	if again[0] == nil {
		t.Error("mutating a returned snapshot slice must not affect the manager's state")
	}
}
