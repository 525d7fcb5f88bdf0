package core

import (
	"sync"
	"time"
)

// PendingObservation records that an intervention was just attempted and
// the Classifier is waiting to see positive activity follow it (spec.md
// §4.4 post-conditions, §4.5 persistent-failure detection). Only one is
// outstanding per Instance at a time.
type PendingObservation struct {
	RecoveryKind             RecoveryKind
	StartedAt                time.Time
	InterventionCountAtStart int
}

// Age returns how long the observation has persisted as of now.
func (p PendingObservation) Age(now time.Time) time.Duration {
	return now.Sub(p.StartedAt)
}

// Instance is the per-process supervision record described in spec.md §3:
// one Instance per monitored IDE window, keyed by PID, carrying its own
// Status, budget counters and pending observation. The §4.3 tier-2 session
// Locator cache lives in locatorstore.Store, keyed by PID, not here. All
// mutation goes through the exported methods, which take mu, so the
// scheduler's single-threaded tick loop and any operator command handler
// (pause/resume) can touch the same Instance safely.
type Instance struct {
	mu sync.Mutex

	ID          string // UUID, stable for the process's lifetime
	PID         int
	WindowTitle string
	CreatedAt   time.Time

	status         Status
	lastTickAt     time.Time
	lastActivityAt time.Time
	paused         bool
	pauseReason    string

	interventionsThisPositive  int
	connectionResumeClicks     int
	consecutiveRecoveryFailures int

	pendingObservation *PendingObservation

	sidebarFingerprint string
	hasSidebarFingerprint bool

	unrecoverableReason string
}

// NewInstance constructs an Instance in StatusUnknown, as it is before the
// first tick observes it.
func NewInstance(id string, pid int, windowTitle string, now time.Time) *Instance {
	return &Instance{
		ID:             id,
		PID:            pid,
		WindowTitle:    windowTitle,
		CreatedAt:      now,
		status:         Status{Kind: StatusUnknown},
		lastActivityAt: now,
	}
}

// LastActivityTime returns the last time positive activity (working,
// sidebar change, or a successful intervention) was observed.
func (i *Instance) LastActivityTime() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastActivityAt
}

// TouchActivity records now as the most recent positive-activity
// timestamp. It never moves backward (spec.md §9 "last_activity_time never
// decreases").
func (i *Instance) TouchActivity(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if now.After(i.lastActivityAt) {
		i.lastActivityAt = now
	}
}

// Status returns the instance's current Status.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// SetStatus transitions the instance to a new Status, recording the tick
// time it happened at.
func (i *Instance) SetStatus(s Status, now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = s
	i.lastTickAt = now
}

// LastTickAt returns the time of the most recent status transition.
func (i *Instance) LastTickAt() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastTickAt
}

// Paused reports whether monitoring is paused for this instance specifically.
func (i *Instance) Paused() (bool, string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.paused, i.pauseReason
}

// SetPaused pauses or resumes monitoring for this instance.
func (i *Instance) SetPaused(paused bool, reason string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.paused = paused
	i.pauseReason = reason
}

// InterventionsThisPositive returns the count of interventions performed
// since positive activity (a working indicator or a sidebar change) was last
// observed or the operator last resumed interventions (spec.md §8).
func (i *Instance) InterventionsThisPositive() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.interventionsThisPositive
}

// IncrementInterventions bumps the per-positive intervention counter and
// returns the new value.
func (i *Instance) IncrementInterventions() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interventionsThisPositive++
	return i.interventionsThisPositive
}

// ResetInterventionBudget clears the per-positive counter and the
// connection-resume click count, called whenever positive activity is
// observed and by the operator resume-interventions command.
func (i *Instance) ResetInterventionBudget() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interventionsThisPositive = 0
	i.connectionResumeClicks = 0
}

// ConnectionResumeClicks returns how many times the Connection recovery
// sub-protocol has clicked resume for the current error episode.
func (i *Instance) ConnectionResumeClicks() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.connectionResumeClicks
}

// IncrementConnectionResumeClicks bumps and returns the new click count.
func (i *Instance) IncrementConnectionResumeClicks() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.connectionResumeClicks++
	return i.connectionResumeClicks
}

// ResetConnectionResumeClicks zeroes the click count, used by the
// ForceStop and Stuck sub-protocols (spec.md §4.4).
func (i *Instance) ResetConnectionResumeClicks() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.connectionResumeClicks = 0
}

// ConsecutiveRecoveryFailures returns the current streak of failed
// recovery attempts (reset whenever a recovery succeeds).
func (i *Instance) ConsecutiveRecoveryFailures() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.consecutiveRecoveryFailures
}

// IncrementRecoveryFailures bumps and returns the new failure streak.
func (i *Instance) IncrementRecoveryFailures() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.consecutiveRecoveryFailures++
	return i.consecutiveRecoveryFailures
}

// ResetRecoveryFailures clears the failure streak after a successful recovery.
func (i *Instance) ResetRecoveryFailures() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.consecutiveRecoveryFailures = 0
}

// SetPendingObservation records the single outstanding post-intervention
// observation (spec.md §4.4 post-conditions).
func (i *Instance) SetPendingObservation(obs PendingObservation) {
	i.mu.Lock()
	defer i.mu.Unlock()
	o := obs
	i.pendingObservation = &o
}

// PendingObservation returns the current pending observation, if any.
func (i *Instance) PendingObservation() (PendingObservation, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pendingObservation == nil {
		return PendingObservation{}, false
	}
	return *i.pendingObservation, true
}

// ClearPendingObservation drops the pending observation, once it is
// resolved (§4.5: aged out, or positive activity observed).
func (i *Instance) ClearPendingObservation() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pendingObservation = nil
}

// SidebarFingerprint returns the last recorded sidebar-activity fingerprint,
// if one has been computed yet (spec.md §4.2 step 7).
func (i *Instance) SidebarFingerprint() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sidebarFingerprint, i.hasSidebarFingerprint
}

// SetSidebarFingerprint records the most recently computed sidebar
// fingerprint.
func (i *Instance) SetSidebarFingerprint(hash string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sidebarFingerprint = hash
	i.hasSidebarFingerprint = true
}

// UnrecoverableReason returns the reason recorded when the instance
// entered StatusUnrecoverable, if any.
func (i *Instance) UnrecoverableReason() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unrecoverableReason
}

// MarkUnrecoverable records reason and transitions to StatusUnrecoverable.
func (i *Instance) MarkUnrecoverable(reason string, now time.Time) {
	i.mu.Lock()
	i.unrecoverableReason = reason
	i.status = Status{Kind: StatusUnrecoverable, Reason: reason}
	i.lastTickAt = now
	i.mu.Unlock()
}

// ClearUnrecoverable drops the unrecoverable marker, used by the operator
// command that clears it and re-arms monitoring (spec.md §5
// "ResumeInterventions").
func (i *Instance) ClearUnrecoverable() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.unrecoverableReason = ""
	i.consecutiveRecoveryFailures = 0
}
