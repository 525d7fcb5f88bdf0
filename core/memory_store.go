package core

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a TTL-aware in-memory key/value store. The locator cascade
// (§4.3) uses one instance, shared by all Instances and keyed by PID and
// element, to remember the last Locator that
// successfully resolved a LogicalElement, so the cascade can skip straight
// to "session cache" on the next tick instead of re-walking the heuristic
// chain.
type MemoryStore struct {
	mu     sync.RWMutex
	store  map[string]memoryEntry
	logger Logger
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store:  make(map[string]memoryEntry),
		logger: &NoOpLogger{},
	}
}

// SetLogger configures the logger for this memory store. The logger is
// tagged with component "supervisor/cache" when it supports component
// tagging.
func (m *MemoryStore) SetLogger(logger Logger) {
	if logger != nil {
		if cal, ok := logger.(ComponentAwareLogger); ok {
			m.logger = cal.WithComponent("supervisor/cache")
		} else {
			m.logger = logger
		}
	} else {
		m.logger = nil
	}
}

// Get retrieves a value, reporting a miss for both absent and expired keys.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.store[key]
	if !exists {
		m.recordMiss("not_found")
		return "", nil
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.recordMiss("expired")
		return "", nil
	}

	if registry := GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.cache.hits")
	}
	if m.logger != nil {
		m.logger.Debug("cache hit", map[string]interface{}{"key": key})
	}

	return entry.value, nil
}

func (m *MemoryStore) recordMiss(reason string) {
	if registry := GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.cache.misses", "reason", reason)
	}
	if m.logger != nil {
		m.logger.Debug("cache miss", map[string]interface{}{"reason": reason})
	}
}

// Set stores a value with an optional TTL. A zero ttl means "never expires"
// (the locator store writes its session-cache entries this way).
func (m *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.store[key] = entry

	if registry := GetGlobalMetricsRegistry(); registry != nil {
		registry.Gauge("supervisor.cache.size", float64(len(m.store)))
	}
	if m.logger != nil {
		m.logger.Debug("cache set", map[string]interface{}{"key": key, "has_ttl": ttl > 0})
	}

	return nil
}

// Delete removes a key. Deleting an absent key is a no-op, matching the
// locator store's invalidation of a cached Locator that no longer matches
// and its per-PID InvalidateInstance (§4.3), neither of which first checks
// existence.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.store, key)

	if registry := GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.cache.evictions", "reason", "explicit_delete")
	}

	return nil
}

// Exists reports whether key is present and unexpired.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.store[key]
	if !exists {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}

// Clear empties the store, dropping every entry regardless of TTL. Removing
// an Instance from lifecycle tracking does not call it.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]memoryEntry)
	return nil
}
