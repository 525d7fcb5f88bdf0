package core

import (
	"testing"
	"time"
)

func TestNewInstance(t *testing.T) {
	now := time.Unix(0, 0)
	inst := NewInstance("id-1", 1234, "main.go — editor", now)

	if inst.PID != 1234 {
		t.Errorf("PID = %d, want 1234", inst.PID)
	}
	if got := inst.Status(); got.Kind != StatusUnknown {
		t.Errorf("Status().Kind = %v, want StatusUnknown", got.Kind)
	}
}

func TestInstance_SetStatus(t *testing.T) {
	inst := NewInstance("id-1", 1, "", time.Time{})
	now := time.Now()
	inst.SetStatus(Status{Kind: StatusWorking, Detail: "Generating"}, now)

	got := inst.Status()
	if got.Kind != StatusWorking || got.Detail != "Generating" {
		t.Errorf("Status() = %+v, want Working(Generating)", got)
	}
	if !inst.LastTickAt().Equal(now) {
		t.Errorf("LastTickAt() = %v, want %v", inst.LastTickAt(), now)
	}
}

func TestInstance_InterventionBudget(t *testing.T) {
	inst := NewInstance("id-1", 1, "", time.Time{})

	if got := inst.InterventionsThisPositive(); got != 0 {
		t.Fatalf("initial InterventionsThisPositive() = %d, want 0", got)
	}
	for i := 1; i <= 3; i++ {
		if got := inst.IncrementInterventions(); got != i {
			t.Errorf("IncrementInterventions() = %d, want %d", got, i)
		}
	}
	inst.ResetInterventionBudget()
	if got := inst.InterventionsThisPositive(); got != 0 {
		t.Errorf("after reset, InterventionsThisPositive() = %d, want 0", got)
	}
}

func TestInstance_ConnectionResumeClicks(t *testing.T) {
	inst := NewInstance("id-1", 1, "", time.Time{})
	for i := 1; i <= 3; i++ {
		if got := inst.IncrementConnectionResumeClicks(); got != i {
			t.Errorf("IncrementConnectionResumeClicks() = %d, want %d", got, i)
		}
	}
	inst.ResetInterventionBudget()
	if got := inst.ConnectionResumeClicks(); got != 0 {
		t.Errorf("after reset, ConnectionResumeClicks() = %d, want 0", got)
	}
}

func TestInstance_RecoveryFailureStreak(t *testing.T) {
	inst := NewInstance("id-1", 1, "", time.Time{})
	inst.IncrementRecoveryFailures()
	inst.IncrementRecoveryFailures()
	if got := inst.ConsecutiveRecoveryFailures(); got != 2 {
		t.Fatalf("ConsecutiveRecoveryFailures() = %d, want 2", got)
	}
	inst.ResetRecoveryFailures()
	if got := inst.ConsecutiveRecoveryFailures(); got != 0 {
		t.Errorf("after reset, ConsecutiveRecoveryFailures() = %d, want 0", got)
	}
}

func TestInstance_PendingObservation(t *testing.T) {
	inst := NewInstance("id-1", 1, "", time.Time{})
	t0 := time.Now()

	if _, exists := inst.PendingObservation(); exists {
		t.Fatal("new instance should have no pending observation")
	}

	inst.SetPendingObservation(PendingObservation{RecoveryKind: RecoveryConnection, StartedAt: t0, InterventionCountAtStart: 2})
	obs, exists := inst.PendingObservation()
	if !exists {
		t.Fatal("PendingObservation() should report present after SetPendingObservation")
	}
	if !obs.StartedAt.Equal(t0) || obs.InterventionCountAtStart != 2 || obs.RecoveryKind != RecoveryConnection {
		t.Errorf("PendingObservation() = %+v, unexpected", obs)
	}

	inst.ClearPendingObservation()
	if _, exists := inst.PendingObservation(); exists {
		t.Error("PendingObservation() should report absent after ClearPendingObservation")
	}
}

func TestInstance_SidebarFingerprint(t *testing.T) {
	inst := NewInstance("id-1", 1, "", time.Time{})
	if _, ok := inst.SidebarFingerprint(); ok {
		t.Fatal("new instance should have no sidebar fingerprint")
	}
	inst.SetSidebarFingerprint("abc123")
	got, ok := inst.SidebarFingerprint()
	if !ok || got != "abc123" {
		t.Errorf("SidebarFingerprint() = (%q, %v), want (\"abc123\", true)", got, ok)
	}
}

func TestInstance_Unrecoverable(t *testing.T) {
	inst := NewInstance("id-1", 1, "", time.Time{})
	inst.IncrementRecoveryFailures()
	inst.MarkUnrecoverable("too many recovery attempts", time.Now())

	if got := inst.Status(); got.Kind != StatusUnrecoverable {
		t.Fatalf("Status().Kind = %v, want StatusUnrecoverable", got.Kind)
	}
	if inst.UnrecoverableReason() != "too many recovery attempts" {
		t.Errorf("UnrecoverableReason() = %q", inst.UnrecoverableReason())
	}

	inst.ClearUnrecoverable()
	if inst.UnrecoverableReason() != "" {
		t.Errorf("UnrecoverableReason() after clear = %q, want empty", inst.UnrecoverableReason())
	}
	if got := inst.ConsecutiveRecoveryFailures(); got != 0 {
		t.Errorf("ConsecutiveRecoveryFailures() after clear = %d, want 0", got)
	}
}

func TestInstance_TouchActivity(t *testing.T) {
	t0 := time.Unix(1000, 0)
	inst := NewInstance("id-1", 1, "", t0)
	if !inst.LastActivityTime().Equal(t0) {
		t.Fatalf("LastActivityTime() = %v, want %v", inst.LastActivityTime(), t0)
	}

	t1 := t0.Add(time.Minute)
	inst.TouchActivity(t1)
	if !inst.LastActivityTime().Equal(t1) {
		t.Errorf("LastActivityTime() = %v, want %v", inst.LastActivityTime(), t1)
	}

	inst.TouchActivity(t0) // earlier timestamp must not move it backward
	if !inst.LastActivityTime().Equal(t1) {
		t.Errorf("LastActivityTime() moved backward to %v, want %v", inst.LastActivityTime(), t1)
	}
}

func TestInstance_Paused(t *testing.T) {
	inst := NewInstance("id-1", 1, "", time.Time{})
	if paused, _ := inst.Paused(); paused {
		t.Fatal("new instance should not be paused")
	}
	inst.SetPaused(true, "operator request")
	paused, reason := inst.Paused()
	if !paused || reason != "operator request" {
		t.Errorf("Paused() = (%v, %q), want (true, \"operator request\")", paused, reason)
	}
}
