package scheduler

import (
	"context"
	"time"

	"github.com/codeloop/supervisor/core"
)

// commandKind enumerates the operator commands exposed in spec.md §6.
type commandKind int

const (
	commandPauseGlobal commandKind = iota
	commandResumeGlobal
	commandResumeInterventions
	commandNudgeNow
)

// command is queued by the public operator-command methods below and
// applied by the tick loop at the next tick boundary (spec.md §5: "Per-
// instance manual pause is effective on the next tick, never mid-tick").
type command struct {
	kind commandKind
	pid  int
}

// InstanceLookup resolves a single Instance by PID. lifecycle.Manager
// satisfies this in addition to InstanceSource.
type InstanceLookup interface {
	Get(pid int) (*core.Instance, bool)
}

// PauseMonitoringGlobal implements the operator command of the same name
// (spec.md §6): stops the Scheduler from processing any Instance on
// subsequent ticks, without tearing down the loop.
func (s *Scheduler) PauseMonitoringGlobal() {
	s.enqueue(command{kind: commandPauseGlobal})
}

// ResumeMonitoringGlobal implements the operator command of the same name.
func (s *Scheduler) ResumeMonitoringGlobal() {
	s.enqueue(command{kind: commandResumeGlobal})
}

// ResumeInterventions implements the operator command of the same name
// (spec.md §6): clears unrecoverable_reason and an intervention-limit
// Paused status, and resets the two counters that produced it.
func (s *Scheduler) ResumeInterventions(pid int) {
	s.enqueue(command{kind: commandResumeInterventions, pid: pid})
}

// NudgeNow implements the operator command of the same name (spec.md §6):
// forces an Intervene(Stuck) Decision bypassing classification, but still
// honoring the Executor's own counters and post-conditions.
func (s *Scheduler) NudgeNow(pid int) {
	s.enqueue(command{kind: commandNudgeNow, pid: pid})
}

func (s *Scheduler) enqueue(cmd command) {
	select {
	case s.commands <- cmd:
	default:
		s.logger.Warn("command queue full, dropping command", map[string]interface{}{"kind": int(cmd.kind)})
	}
}

func (s *Scheduler) applyCommand(cmd command) {
	switch cmd.kind {
	case commandPauseGlobal:
		s.globalPaused.Store(true)
		s.logger.Info("monitoring paused globally", nil)
	case commandResumeGlobal:
		s.globalPaused.Store(false)
		s.logger.Info("monitoring resumed globally", nil)
	case commandResumeInterventions:
		s.applyResumeInterventions(cmd.pid)
	case commandNudgeNow:
		s.applyNudgeNow(cmd.pid)
	}
}

func (s *Scheduler) applyResumeInterventions(pid int) {
	lookup, ok := s.instances.(InstanceLookup)
	if !ok {
		return
	}
	inst, ok := lookup.Get(pid)
	if !ok {
		return
	}
	now := s.clock.Now()
	inst.ClearUnrecoverable()
	inst.ResetInterventionBudget()
	inst.ResetRecoveryFailures()
	inst.SetPaused(false, "")
	inst.SetStatus(core.Status{Kind: core.StatusIdle}, now)
	s.appendLog(inst, core.LogEntryOperatorCommand, "interventions resumed by operator", nil)
}

func (s *Scheduler) applyNudgeNow(pid int) {
	lookup, ok := s.instances.(InstanceLookup)
	if !ok {
		return
	}
	inst, ok := lookup.Get(pid)
	if !ok {
		return
	}
	now := s.clock.Now()
	attempt := inst.InterventionsThisPositive() + 1
	s.appendLog(inst, core.LogEntryOperatorCommand, "nudge forced by operator", nil)
	s.nudge(context.Background(), inst, attempt, now)
}

// nudge is split out so tests can stub the forced-nudge path without a full
// Start loop running.
func (s *Scheduler) nudge(ctx context.Context, inst *core.Instance, attempt int, now time.Time) {
	s.exec.Execute(ctx, inst, core.RecoveryStuck, attempt, s.cfg.SoundOnIntervention, now)
}
