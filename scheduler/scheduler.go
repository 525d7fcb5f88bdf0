// Package scheduler implements the Scheduler / Tick Loop (spec.md §4.1): a
// single cooperative task that, while at least one Instance exists and
// global monitoring is on, snapshots the current Instance set once per
// tick interval and runs each Instance through the Classifier and, when a
// Decision calls for it, the Intervention Executor.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeloop/supervisor/ax"
	"github.com/codeloop/supervisor/classifier"
	"github.com/codeloop/supervisor/core"
	"github.com/codeloop/supervisor/executor"
	"github.com/codeloop/supervisor/feedback"
)

// InstanceSource supplies the Instance set each tick. lifecycle.Manager
// satisfies this.
type InstanceSource interface {
	Snapshot() []*core.Instance
}

// SessionLog is the narrow append interface the scheduler logs status
// transitions to.
type SessionLog interface {
	Append(entry core.SessionLogEntry)
}

// Scheduler drives the tick loop described in spec.md §4.1 and §5: single
// goroutine, sequential per-tick processing, no overlapping entries for
// the same Instance, skip-not-queue on overrun.
type Scheduler struct {
	instances InstanceSource
	resolver  classifier.Resolver
	driver    ax.Driver
	exec      *executor.Executor
	cfg       *core.Config
	clock     core.Clock
	logger    core.Logger
	feedback  feedback.Channels
	sessionLog SessionLog

	commands chan command

	running      atomic.Bool
	globalPaused atomic.Bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Deps bundles the Scheduler's collaborators.
type Deps struct {
	Instances  InstanceSource
	Resolver   classifier.Resolver
	Driver     ax.Driver
	Executor   *executor.Executor
	Config     *core.Config
	Clock      core.Clock
	Logger     core.Logger
	Feedback   feedback.Channels
	SessionLog SessionLog
}

// New builds a Scheduler. Clock defaults to core.SystemClock when nil.
func New(d Deps) *Scheduler {
	clock := d.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	logger := d.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("supervisor/scheduler")
	}
	return &Scheduler{
		instances:  d.Instances,
		resolver:   d.Resolver,
		driver:     d.Driver,
		exec:       d.Executor,
		cfg:        d.Config,
		clock:      clock,
		logger:     logger,
		feedback:   d.Feedback,
		sessionLog: d.SessionLog,
		commands:   make(chan command, 16),
	}
}

// Start begins the tick loop. Blocks until ctx is cancelled or Stop is
// called; safe to run in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.running.Swap(true) {
		return fmt.Errorf("scheduler already running")
	}
	defer s.running.Store(false)

	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", map[string]interface{}{"tick_interval": s.cfg.TickInterval.String()})

	for {
		select {
		case <-tickCtx.Done():
			s.logger.Info("scheduler stopped", nil)
			return nil
		case cmd := <-s.commands:
			s.applyCommand(cmd)
		case <-ticker.C:
			s.drainCommands()
			if s.globalPaused.Load() {
				continue
			}
			instances := s.instances.Snapshot()
			if len(instances) == 0 {
				continue
			}
			s.runTick(tickCtx, instances)
		}
	}
}

// Stop signals the tick loop to exit. It does not block; callers awaiting
// full shutdown should select on the error returned by Start via a
// WaitGroup of their own, mirroring the teacher's cancel-then-await pattern.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// OnMonitoredSetEmpty implements lifecycle.EmptySetListener: the Scheduler
// does not exit outright (Start/Stop remain explicit operator-driven calls
// at the composition root), but skips processing until a new Instance
// appears, matching §4.1's "exits after completing the current tick" intent
// without tearing down the goroutine on every empty gap.
func (s *Scheduler) OnMonitoredSetEmpty() {
	s.logger.Info("monitored set empty, ticks will be no-ops", nil)
}

// OnMonitoredSetNonEmpty implements lifecycle.EmptySetListener.
func (s *Scheduler) OnMonitoredSetNonEmpty() {
	s.logger.Info("monitored set non-empty, resuming ticks", nil)
}

// drainCommands applies every command queued since the previous tick,
// without blocking past what is already buffered. Per spec.md §5, operator
// commands take effect at tick boundaries, never mid-tick.
func (s *Scheduler) drainCommands() {
	for {
		select {
		case cmd := <-s.commands:
			s.applyCommand(cmd)
		default:
			return
		}
	}
}

// runTick processes each Instance sequentially. Per spec.md §4.1, instance
// ordering across a tick is unspecified; Snapshot's launch order is used
// for determinism in tests.
func (s *Scheduler) runTick(ctx context.Context, instances []*core.Instance) {
	start := time.Now()
	now := s.clock.Now()
	for _, inst := range instances {
		s.processInstance(ctx, inst, now)
	}
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Histogram("supervisor.scheduler.tick_duration_ms", float64(time.Since(start).Milliseconds()), "instance_count", fmt.Sprintf("%d", len(instances)))
	}
}

func (s *Scheduler) processInstance(ctx context.Context, inst *core.Instance, now time.Time) {
	decision, err := classifier.Classify(ctx, s.cfg, inst, s.resolver, s.driver, now)
	if err != nil {
		s.logger.WarnWithContext(ctx, "classify failed", map[string]interface{}{
			"instance_id": inst.ID,
			"pid":         inst.PID,
			"error":       err.Error(),
		})
		return
	}
	s.applyDecision(ctx, inst, decision, now)
}

func (s *Scheduler) applyDecision(ctx context.Context, inst *core.Instance, decision classifier.Decision, now time.Time) {
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.classifier.decision", "kind", decision.Kind.String())
	}
	switch decision.Kind {
	case classifier.DecisionIntervene:
		attempt := inst.InterventionsThisPositive() + 1
		s.exec.Execute(ctx, inst, decision.RecoveryKind, attempt, s.cfg.SoundOnIntervention, now)
		return
	case classifier.DecisionEnterUnrecoverable:
		classifier.ApplyDecision(inst, decision, now)
		s.feedback.OnUnrecoverable(ctx, s.cfg.NotificationOnPersistentError, decision.Reason)
		s.appendLog(inst, core.LogEntryStatusChange, fmt.Sprintf("unrecoverable: %s", decision.Reason), nil)
		return
	case classifier.DecisionEnterParameterizedPause:
		classifier.ApplyDecision(inst, decision, now)
		s.feedback.OnInterventionLimitPaused(ctx, s.cfg.NotificationOnPersistentError)
		s.appendLog(inst, core.LogEntryStatusChange, fmt.Sprintf("paused: %s", decision.Reason), nil)
		return
	default:
		classifier.ApplyDecision(inst, decision, now)
		// A NoOp that is not the unrecoverable or manual-pause short-circuit
		// means nothing matched: surface Idle.
		if decision.Kind == classifier.DecisionNoOp && inst.UnrecoverableReason() == "" {
			if paused, _ := inst.Paused(); !paused {
				inst.SetStatus(core.Status{Kind: core.StatusIdle}, now)
			}
		}
	}
}

func (s *Scheduler) appendLog(inst *core.Instance, kind core.SessionLogEntryKind, message string, fields map[string]interface{}) {
	if s.sessionLog == nil {
		return
	}
	s.sessionLog.Append(core.SessionLogEntry{InstanceID: inst.ID, Kind: kind, Message: message, Fields: fields})
}
