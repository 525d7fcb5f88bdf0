// Package sessionlog implements the bounded, append-only ring of
// structured events the UI layer observes (spec.md §4.7). Writes are
// serialized by an internal mutex; readers see an immutable snapshot, never
// a reference into the live ring, matching spec.md §5's "Instance map is
// never exposed by reference" policy applied to this resource too.
package sessionlog

import (
	"sync"
	"time"

	"github.com/codeloop/supervisor/core"
)

// Log is a fixed-capacity FIFO ring of core.SessionLogEntry.
type Log struct {
	mu       sync.RWMutex
	entries  []core.SessionLogEntry
	capacity int
	next     int
	size     int

	subscribers []chan []core.SessionLogEntry
}

// New returns a Log with the given capacity (spec.md §4.7 default ≈1000).
// A non-positive capacity is treated as 1000.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Log{
		entries:  make([]core.SessionLogEntry, capacity),
		capacity: capacity,
	}
}

// Append adds entry, evicting the oldest entry if the ring is full.
func (l *Log) Append(entry core.SessionLogEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	l.mu.Lock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
	snapshot := l.snapshotLocked()
	subs := append([]chan []core.SessionLogEntry(nil), l.subscribers...)
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
			// Slow subscriber: drop rather than block the log writer, matching
			// the "no blocking I/O" suspension-point policy (spec.md §5).
		}
	}
}

// Snapshot returns every entry currently in the log, oldest first.
func (l *Log) Snapshot() []core.SessionLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Log) snapshotLocked() []core.SessionLogEntry {
	out := make([]core.SessionLogEntry, l.size)
	if l.size == 0 {
		return out
	}
	start := (l.next - l.size + l.capacity) % l.capacity
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(start+i)%l.capacity]
	}
	return out
}

// Clear empties the log (spec.md §4.7 "also exposes clear()").
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]core.SessionLogEntry, l.capacity)
	l.next = 0
	l.size = 0
}

// Subscribe returns a channel that receives a full snapshot after every
// Append, matching the "publish with snapshot semantics" observable
// described in spec.md §5. The returned cancel func unregisters the
// channel; callers must call it to avoid leaking the subscription.
func (l *Log) Subscribe(buffer int) (ch <-chan []core.SessionLogEntry, cancel func()) {
	if buffer <= 0 {
		buffer = 1
	}
	sub := make(chan []core.SessionLogEntry, buffer)

	l.mu.Lock()
	l.subscribers = append(l.subscribers, sub)
	l.mu.Unlock()

	cancelFn := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subscribers {
			if s == sub {
				l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
				close(sub)
				return
			}
		}
	}
	return sub, cancelFn
}

// Len returns the number of entries currently stored.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}
