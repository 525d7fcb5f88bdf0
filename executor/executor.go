// Package executor implements the Intervention Executor (spec.md §4.4): for
// each RecoveryKind, a deterministic ordered sub-protocol of AX calls that
// attempts recovery, updating Instance counters and appending Session Log
// entries per the post-conditions in §4.4 and §8.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/codeloop/supervisor/ax"
	"github.com/codeloop/supervisor/classifier"
	"github.com/codeloop/supervisor/core"
	"github.com/codeloop/supervisor/feedback"
)

// Executor performs RecoveryKind sub-protocols against the AX driver,
// resolving each LogicalElement it needs through resolver.
type Executor struct {
	resolver   classifier.Resolver
	driver     ax.Driver
	feedback   feedback.Channels
	sessionLog SessionLog
	logger     core.Logger
	nudgeText  string
}

// SessionLog is the narrow subset of sessionlog.Log the executor appends
// to, kept as an interface so tests can substitute a fake.
type SessionLog interface {
	Append(entry core.SessionLogEntry)
}

// New builds an Executor. cfg-level feature toggles are read by the caller
// (Classifier); the Executor always performs whichever RecoveryKind it is
// asked to, since toggles gate whether Classify ever produces that Decision.
// nudgeText is the configured Stuck-recovery nudge text (Config.NudgeText);
// an empty string falls back to a single space per spec.md §4.4.
func New(resolver classifier.Resolver, driver ax.Driver, sessionLog SessionLog, ch feedback.Channels, nudgeText string, logger core.Logger) *Executor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("supervisor/executor")
	}
	return &Executor{resolver: resolver, driver: driver, feedback: ch, sessionLog: sessionLog, nudgeText: nudgeText, logger: logger}
}

// delayBetweenSubSteps is the short cooperative pause the StopGenerating
// sub-protocol takes between pressing "stop" and pressing "resume" (spec.md
// §4.4: "after a short delay").
var delayBetweenSubSteps = 300 * time.Millisecond

// sleep is a package variable so tests can stub it to avoid real waits.
var sleep = func(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Execute performs the sub-protocol for kind against inst and records the
// outcome on inst itself; it has no return value (the caller, typically the
// Scheduler, has already obtained kind from a classifier.Decision).
// soundEnabled gates the optional sound feedback.
func (e *Executor) Execute(ctx context.Context, inst *core.Instance, kind core.RecoveryKind, attempt int, soundEnabled bool, now time.Time) {
	switch kind {
	case core.RecoveryConnection:
		e.runConnection(ctx, inst, attempt, soundEnabled, now)
	case core.RecoveryForceStop:
		e.runForceStop(ctx, inst, attempt, soundEnabled, now)
	case core.RecoveryStopGenerating:
		e.runStopGenerating(ctx, inst, attempt, soundEnabled, now)
	case core.RecoveryStuck:
		e.runStuck(ctx, inst, attempt, soundEnabled, now)
	}
}

// runConnection implements the Connection sub-protocol. On resolution
// failure it falls through to Stuck, which resets connection_resume_clicks
// (spec.md §4.4).
func (e *Executor) runConnection(ctx context.Context, inst *core.Instance, attempt int, soundEnabled bool, now time.Time) {
	if e.pressElement(ctx, inst, core.ElementResumeConnectionButton, core.RecoveryConnection, attempt, now) {
		inst.IncrementConnectionResumeClicks()
		e.completeIntervention(ctx, inst, core.RecoveryConnection, attempt, soundEnabled, now)
		return
	}
	inst.ResetConnectionResumeClicks()
	e.runStuck(ctx, inst, attempt, soundEnabled, now)
}

// runForceStop implements the ForceStop sub-protocol.
func (e *Executor) runForceStop(ctx context.Context, inst *core.Instance, attempt int, soundEnabled bool, now time.Time) {
	if e.pressElement(ctx, inst, core.ElementForceStopResumeLink, core.RecoveryForceStop, attempt, now) {
		inst.ResetConnectionResumeClicks()
		e.completeIntervention(ctx, inst, core.RecoveryForceStop, attempt, soundEnabled, now)
		return
	}
	e.failIntervention(inst, core.ElementForceStopResumeLink, now)
}

// runStopGenerating implements the StopGenerating sub-protocol: press
// "stop", then after a short delay press "resume connection".
func (e *Executor) runStopGenerating(ctx context.Context, inst *core.Instance, attempt int, soundEnabled bool, now time.Time) {
	if !e.pressElement(ctx, inst, core.ElementStopGeneratingButton, core.RecoveryStopGenerating, attempt, now) {
		e.failIntervention(inst, core.ElementStopGeneratingButton, now)
		return
	}

	sleep(ctx, delayBetweenSubSteps)

	if !e.pressElement(ctx, inst, core.ElementResumeConnectionButton, core.RecoveryStopGenerating, attempt, now) {
		e.failIntervention(inst, core.ElementResumeConnectionButton, now)
		return
	}

	e.completeIntervention(ctx, inst, core.RecoveryStopGenerating, attempt, soundEnabled, now)
}

// runStuck implements the Stuck ("nudge") sub-protocol: raise/focus the
// main input field, set the nudge text, then press it to submit.
func (e *Executor) runStuck(ctx context.Context, inst *core.Instance, attempt int, soundEnabled bool, now time.Time) {
	const element = core.ElementMainInputField

	res, err := e.resolver.Resolve(ctx, inst.PID, element)
	if err != nil || !res.Resolved {
		e.failIntervention(inst, element, now)
		return
	}

	if err := e.driver.Perform(ctx, inst.PID, res.Locator, ax.ActionRaise, ""); err != nil {
		e.failIntervention(inst, element, now)
		return
	}

	nudgeText := e.nudgeText
	if nudgeText == "" {
		nudgeText = " "
	}
	if err := e.driver.Perform(ctx, inst.PID, res.Locator, ax.ActionSetValue, nudgeText); err != nil {
		e.failIntervention(inst, element, now)
		return
	}

	if err := e.driver.Perform(ctx, inst.PID, res.Locator, ax.ActionPress, ""); err != nil {
		e.failIntervention(inst, element, now)
		return
	}
	e.confirmSuccess(ctx, inst.PID, res)

	inst.ResetConnectionResumeClicks()
	e.completeIntervention(ctx, inst, core.RecoveryStuck, attempt, soundEnabled, now)
}

// pressElement resolves element and presses it, returning false if
// resolution or the AX action fails.
func (e *Executor) pressElement(ctx context.Context, inst *core.Instance, element core.LogicalElement, kind core.RecoveryKind, attempt int, now time.Time) bool {
	res, err := e.resolver.Resolve(ctx, inst.PID, element)
	if err != nil || !res.Resolved {
		return false
	}
	if err := e.driver.Perform(ctx, inst.PID, res.Locator, ax.ActionPress, ""); err != nil {
		return false
	}
	e.confirmSuccess(ctx, inst.PID, res)
	return true
}

// confirmingResolver is implemented by locatorstore.Store. Kept as an
// optional interface on top of classifier.Resolver so tests can supply a
// plain resolver fake without also implementing cache confirmation.
type confirmingResolver interface {
	ConfirmSuccess(ctx context.Context, appPID int, element core.LogicalElement, locator core.Locator, source core.LocatorSource)
}

// confirmSuccess reports a successful AX action against res's Locator back
// to the resolver, so the §4.3 session cache tier reflects the Locator that
// actually worked (spec.md §4.3 "subsequent AX action succeeds").
func (e *Executor) confirmSuccess(ctx context.Context, appPID int, res core.LocatorResolution) {
	if cr, ok := e.resolver.(confirmingResolver); ok {
		cr.ConfirmSuccess(ctx, appPID, res.Element, res.Locator, res.Source)
	}
}

// completeIntervention applies the successful-intervention post-conditions
// common to every sub-protocol (spec.md §4.4 post-conditions, §8 invariants
// 1 and 5): increments the per-positive counter, records the single
// PendingObservation, transitions to Recovering, logs, and emits feedback.
func (e *Executor) completeIntervention(ctx context.Context, inst *core.Instance, kind core.RecoveryKind, attempt int, soundEnabled bool, now time.Time) {
	countBefore := inst.InterventionsThisPositive()
	inst.IncrementInterventions()
	inst.SetPendingObservation(core.PendingObservation{RecoveryKind: kind, StartedAt: now, InterventionCountAtStart: countBefore})
	inst.TouchActivity(now)
	inst.SetStatus(core.Status{Kind: core.StatusRecovering, RecoveryKind: kind, Attempt: attempt}, now)

	e.feedback.OnIntervention(ctx, soundEnabled)

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.executor.intervention", "recovery_kind", kind.String())
	}

	e.appendLog(inst, core.LogEntryInterventionSucceeded, fmt.Sprintf("%s intervention succeeded (attempt %d)", kind, attempt), map[string]interface{}{
		"recovery_kind": kind.String(),
		"attempt":       attempt,
	})
}

// failIntervention applies the failed-intervention post-condition: no
// counter is incremented since no action was taken, and the instance
// transitions to Unrecoverable naming the element that could not be found
// (spec.md §4.3 "Failure", §4.4 post-conditions).
func (e *Executor) failIntervention(inst *core.Instance, element core.LogicalElement, now time.Time) {
	reason := fmt.Sprintf("%s not found", element.String())
	inst.MarkUnrecoverable(reason, now)
	e.appendLog(inst, core.LogEntryInterventionFailed, reason, map[string]interface{}{"element": element.String()})
}

func (e *Executor) appendLog(inst *core.Instance, kind core.SessionLogEntryKind, message string, fields map[string]interface{}) {
	if e.sessionLog == nil {
		return
	}
	e.sessionLog.Append(core.SessionLogEntry{
		InstanceID: inst.ID,
		Kind:       kind,
		Message:    message,
		Fields:     fields,
	})
}
