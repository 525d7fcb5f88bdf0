package classifier

import (
	"time"

	"github.com/codeloop/supervisor/core"
)

// ApplyPositive applies the state mutation side of a MarkPositive or
// NoteSidebarActivity Decision (spec.md §4.2 steps 6-7, §8 invariant 2):
// clears unrecoverable_reason, resets all three budget counters, and
// touches last_activity_time. Callers pass the Working status detail text
// appropriate to the Decision (the matched indicator text, or "Recent
// Sidebar Activity" per spec.md §8 scenario S6).
func ApplyPositive(inst *core.Instance, statusDetail string, now time.Time) {
	inst.ClearUnrecoverable()
	inst.ResetInterventionBudget()
	inst.ResetRecoveryFailures()
	inst.TouchActivity(now)
	inst.SetStatus(core.Status{Kind: core.StatusWorking, Detail: statusDetail}, now)
}

// ApplyDecision applies the non-intervention Decision kinds' state
// transitions (NoOp carries none; Intervene is applied by the executor,
// which needs the AX driver). EnterParameterizedPause and
// EnterUnrecoverable both surface their reason as the new Status.
func ApplyDecision(inst *core.Instance, decision Decision, now time.Time) {
	switch decision.Kind {
	case DecisionMarkPositive:
		ApplyPositive(inst, decision.Detail, now)
	case DecisionNoteSidebarActivity:
		ApplyPositive(inst, "Recent Sidebar Activity", now)
	case DecisionEnterParameterizedPause:
		inst.SetStatus(core.Status{Kind: core.StatusPaused, Reason: decision.Reason}, now)
	case DecisionEnterUnrecoverable:
		inst.MarkUnrecoverable(decision.Reason, now)
	}
}
