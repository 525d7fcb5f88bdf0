// Package supervisor exposes the operator command surface (spec.md §6) as a
// small façade over the Scheduler, the Lifecycle Manager and the Session
// Log, so a UI/menu-bar layer (out of scope for this module) has exactly
// one type to hold onto.
package supervisor

import (
	"github.com/codeloop/supervisor/core"
	"github.com/codeloop/supervisor/lifecycle"
	"github.com/codeloop/supervisor/scheduler"
	"github.com/codeloop/supervisor/sessionlog"
)

// commander is the subset of *scheduler.Scheduler the Controller delegates
// to, kept as an interface so tests can substitute a recording fake instead
// of standing up a full Scheduler.
type commander interface {
	PauseMonitoringGlobal()
	ResumeMonitoringGlobal()
	ResumeInterventions(pid int)
	NudgeNow(pid int)
}

// Controller is the single entry point external callers use to issue
// operator commands and read observable state. It never mutates Instance
// state directly (spec.md §9 Design Notes' one-way-ownership resolution):
// every command is serialized into the Scheduler's own command channel and
// applied at the next tick boundary.
type Controller struct {
	scheduler commander
	lifecycle *lifecycle.Manager
	log       *sessionlog.Log
}

// New builds a Controller wired to the given Scheduler, Lifecycle Manager
// and Session Log.
func New(sched commander, lm *lifecycle.Manager, log *sessionlog.Log) *Controller {
	return &Controller{scheduler: sched, lifecycle: lm, log: log}
}

// PauseMonitoringGlobal implements the operator command of the same name.
func (c *Controller) PauseMonitoringGlobal() {
	c.scheduler.PauseMonitoringGlobal()
}

// ResumeMonitoringGlobal implements the operator command of the same name.
func (c *Controller) ResumeMonitoringGlobal() {
	c.scheduler.ResumeMonitoringGlobal()
}

// ResumeInterventions implements the operator command of the same name
// (spec.md §6): clears unrecoverable_reason and an intervention-limit
// Paused status for pid, resetting the counters that produced it.
func (c *Controller) ResumeInterventions(pid int) {
	c.scheduler.ResumeInterventions(pid)
}

// NudgeNow implements the operator command of the same name (spec.md §6):
// forces a Stuck intervention for pid bypassing classification.
func (c *Controller) NudgeNow(pid int) {
	c.scheduler.NudgeNow(pid)
}

// MonitoredApps returns the current monitored-apps list for the UI layer
// (spec.md §4.6).
func (c *Controller) MonitoredApps() []lifecycle.MonitoredApp {
	return c.lifecycle.MonitoredApps()
}

// SessionLogSnapshot returns every entry currently in the Session Log
// (spec.md §4.7).
func (c *Controller) SessionLogSnapshot() []core.SessionLogEntry {
	return c.log.Snapshot()
}

// ClearSessionLog empties the Session Log (spec.md §4.7).
func (c *Controller) ClearSessionLog() {
	c.log.Clear()
}

// SubscribeSessionLog returns a channel receiving a full snapshot after
// every Session Log write, and a cancel func to unregister it (spec.md §5
// "publish with snapshot semantics").
func (c *Controller) SubscribeSessionLog(buffer int) (<-chan []core.SessionLogEntry, func()) {
	return c.log.Subscribe(buffer)
}
