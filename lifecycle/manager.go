// Package lifecycle implements the Lifecycle Manager (spec.md §4.6): the
// authoritative PID -> Instance map, driven by process-launch/termination
// notifications for a configured bundle identifier.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeloop/supervisor/core"
)

// ProcessEvent is one launch or termination notification delivered by the
// process event source (spec.md §6 "Process event source").
type ProcessEvent struct {
	Kind             ProcessEventKind
	BundleIdentifier string
	PID              int
	WindowTitle      string
}

// ProcessEventKind distinguishes launch from termination.
type ProcessEventKind int

const (
	ProcessLaunched ProcessEventKind = iota
	ProcessTerminated
)

func (k ProcessEventKind) String() string {
	switch k {
	case ProcessLaunched:
		return "launched"
	case ProcessTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ProcessEventSource is the external collaborator the Lifecycle Manager
// subscribes to (spec.md §6). A real implementation watches OS process
// notifications filtered to BundleIdentifier; tests substitute a channel
// fed by hand.
type ProcessEventSource interface {
	Subscribe(ctx context.Context) (<-chan ProcessEvent, error)
}

// EmptySetListener is notified when the monitored-apps set transitions to
// or from empty, so the Scheduler can start/stop itself (spec.md §4.6 "If
// the set becomes empty, signals the Scheduler to stop").
type EmptySetListener interface {
	OnMonitoredSetEmpty()
	OnMonitoredSetNonEmpty()
}

// Manager maintains the authoritative PID -> Instance map and the
// monotonic "monitored apps" list exposed to the UI layer.
type Manager struct {
	mu        sync.RWMutex
	instances map[int]*core.Instance
	order     []int // PID insertion order, for a stable monitored-apps listing

	bundleIdentifier string
	clock            core.Clock
	logger           core.Logger

	listener EmptySetListener
}

// New builds a Manager watching for the given bundle identifier. clock
// defaults to core.SystemClock when nil; logger defaults to a no-op.
func New(bundleIdentifier string, clock core.Clock, logger core.Logger) *Manager {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("supervisor/lifecycle")
	}
	return &Manager{
		instances:        make(map[int]*core.Instance),
		bundleIdentifier: bundleIdentifier,
		clock:            clock,
		logger:           logger,
	}
}

// SetEmptySetListener registers the listener notified on empty-set
// transitions. Typically the Scheduler.
func (m *Manager) SetEmptySetListener(l EmptySetListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Run subscribes to source and applies every event until ctx is cancelled
// or the source's channel closes.
func (m *Manager) Run(ctx context.Context, source ProcessEventSource) error {
	events, err := source.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			m.Apply(evt)
		}
	}
}

// Apply handles a single ProcessEvent synchronously, ignoring events for
// any bundle identifier other than the configured one.
func (m *Manager) Apply(evt ProcessEvent) {
	if m.bundleIdentifier != "" && evt.BundleIdentifier != m.bundleIdentifier {
		return
	}
	switch evt.Kind {
	case ProcessLaunched:
		m.onLaunch(evt.PID, evt.WindowTitle)
	case ProcessTerminated:
		m.onTerminate(evt.PID)
	}
}

func (m *Manager) onLaunch(pid int, windowTitle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[pid]; exists {
		return
	}

	now := m.clock.Now()
	inst := core.NewInstance(uuid.NewString(), pid, windowTitle, now)

	wasEmpty := len(m.instances) == 0
	m.instances[pid] = inst
	m.order = append(m.order, pid)

	m.logger.Info("instance created", map[string]interface{}{
		"pid":               pid,
		"instance_id":       inst.ID,
		"window_title":      windowTitle,
		"monitored_app_count": len(m.instances),
	})

	if wasEmpty && m.listener != nil {
		m.listener.OnMonitoredSetNonEmpty()
	}
}

func (m *Manager) onTerminate(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, exists := m.instances[pid]
	if !exists {
		return
	}
	delete(m.instances, pid)
	m.order = removePID(m.order, pid)

	m.logger.Info("instance removed", map[string]interface{}{
		"pid":               pid,
		"instance_id":       inst.ID,
		"monitored_app_count": len(m.instances),
	})

	if len(m.instances) == 0 && m.listener != nil {
		m.listener.OnMonitoredSetEmpty()
	}
}

func removePID(order []int, pid int) []int {
	for i, p := range order {
		if p == pid {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// Get returns the Instance for pid, if one is currently monitored.
func (m *Manager) Get(pid int) (*core.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[pid]
	return inst, ok
}

// Snapshot returns the currently monitored instances in launch order. The
// slice is a fresh copy; the Instance map itself is never exposed by
// reference (spec.md §5 "Shared resource policy").
func (m *Manager) Snapshot() []*core.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Instance, 0, len(m.order))
	for _, pid := range m.order {
		out = append(out, m.instances[pid])
	}
	return out
}

// MonitoredApps returns a read-only view of the monitored apps list for the
// UI layer: PID, window title, instance ID and creation time, never the
// Instance itself.
func (m *Manager) MonitoredApps() []MonitoredApp {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MonitoredApp, 0, len(m.order))
	for _, pid := range m.order {
		inst := m.instances[pid]
		out = append(out, MonitoredApp{
			PID:         pid,
			WindowTitle: inst.WindowTitle,
			InstanceID:  inst.ID,
			CreatedAt:   inst.CreatedAt,
		})
	}
	return out
}

// MonitoredApp is an immutable snapshot row for the UI-facing monitored
// apps list (spec.md §4.6).
type MonitoredApp struct {
	PID         int
	WindowTitle string
	InstanceID  string
	CreatedAt   time.Time
}

// Count returns the number of currently monitored instances.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}
