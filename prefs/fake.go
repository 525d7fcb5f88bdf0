package prefs

import (
	"context"
	"sync"

	"github.com/codeloop/supervisor/core"
)

// Fake is an in-memory Preferences implementation for tests that don't
// need the file-backed hot-reload behavior of FileStore.
type Fake struct {
	mu        sync.RWMutex
	bools     map[string]bool
	ints      map[string]int
	strings   map[string]string
	overrides map[core.LogicalElement]core.Locator
}

// NewFake returns an empty Fake preferences store.
func NewFake() *Fake {
	return &Fake{
		bools:     make(map[string]bool),
		ints:      make(map[string]int),
		strings:   make(map[string]string),
		overrides: make(map[core.LogicalElement]core.Locator),
	}
}

func (f *Fake) GetBool(ctx context.Context, key string, fallback bool) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if v, ok := f.bools[key]; ok {
		return v
	}
	return fallback
}

func (f *Fake) GetInt(ctx context.Context, key string, fallback int) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if v, ok := f.ints[key]; ok {
		return v
	}
	return fallback
}

func (f *Fake) GetString(ctx context.Context, key string, fallback string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if v, ok := f.strings[key]; ok {
		return v
	}
	return fallback
}

func (f *Fake) UserOverrideLocator(ctx context.Context, element core.LogicalElement) (core.Locator, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	loc, ok := f.overrides[element]
	return loc, ok
}

func (f *Fake) SetUserOverrideLocator(ctx context.Context, element core.LogicalElement, locator core.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[element] = locator
	return nil
}

func (f *Fake) Close() error { return nil }
