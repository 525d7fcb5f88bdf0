// Package locatorstore implements the Locator Store (spec.md §4.3): the
// cascade that resolves a LogicalElement to a concrete core.Locator for a
// given process, trying a user override, a session-proven cache entry, the
// bundled default, and finally an ordered heuristic chain, in that order.
package locatorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeloop/supervisor/ax"
	"github.com/codeloop/supervisor/core"
	"github.com/codeloop/supervisor/prefs"
)

// Store resolves LogicalElements to Locators per the §4.3 cascade and
// remembers which Locator last proved to work for a given process.
type Store struct {
	driver      ax.Driver
	preferences prefs.Preferences
	sessionCache *core.MemoryStore
	defaults    defaultTable
	heuristics  heuristicTable
	logger      core.Logger
}

// New builds a Store backed by driver for AX queries and preferences for
// user overrides. The bundled default and heuristic tables are parsed once
// from the embedded defaults.yaml asset.
func New(driver ax.Driver, preferences prefs.Preferences, logger core.Logger) *Store {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("supervisor/locatorstore")
	}
	defaults, heuristics := loadBundledDefaults()
	cache := core.NewMemoryStore()
	cache.SetLogger(logger)
	return &Store{
		driver:       driver,
		preferences:  preferences,
		sessionCache: cache,
		defaults:     defaults,
		heuristics:   heuristics,
		logger:       logger,
	}
}

func cacheKey(appPID int, element core.LogicalElement) string {
	return fmt.Sprintf("%d:%s", appPID, element.String())
}

// Resolve runs the §4.3 cascade for (element, appPID) and returns the
// resolved Locator along with the tier that produced it. It does not query
// the AX driver for the user-override or session-cache tiers beyond the
// cache-liveness check (tier 2); tier 3 and tier 4 candidates are queried in
// order until one returns a non-empty result.
func (s *Store) Resolve(ctx context.Context, appPID int, element core.LogicalElement) (core.LocatorResolution, error) {
	if loc, ok := s.preferences.UserOverrideLocator(ctx, element); ok && !loc.IsZero() {
		s.recordResolution(core.LocatorSourceUserOverride)
		return core.LocatorResolution{Element: element, Locator: loc, Source: core.LocatorSourceUserOverride, Resolved: true}, nil
	}

	if cached, ok := s.cachedLocator(ctx, appPID, element); ok {
		if _, err := s.driver.Query(ctx, appPID, cached, nil); err == nil {
			s.recordResolution(core.LocatorSourceSessionCache)
			return core.LocatorResolution{Element: element, Locator: cached, Source: core.LocatorSourceSessionCache, Resolved: true}, nil
		}
		s.invalidateCache(ctx, appPID, element)
	}

	if def, ok := s.defaults[element]; ok && !def.IsZero() {
		if _, err := s.driver.Query(ctx, appPID, def, nil); err == nil {
			s.cacheLocator(ctx, appPID, element, def)
			s.recordResolution(core.LocatorSourceBundledDefault)
			return core.LocatorResolution{Element: element, Locator: def, Source: core.LocatorSourceBundledDefault, Resolved: true}, nil
		}
	}

	for _, candidate := range s.heuristics[element] {
		if _, err := s.driver.Query(ctx, appPID, candidate, nil); err == nil {
			s.cacheLocator(ctx, appPID, element, candidate)
			s.recordResolution(core.LocatorSourceHeuristic)
			return core.LocatorResolution{Element: element, Locator: candidate, Source: core.LocatorSourceHeuristic, Resolved: true}, nil
		}
	}

	s.logger.Debug("locator cascade exhausted", map[string]interface{}{"element": element.String(), "pid": appPID})
	s.recordResolution(core.LocatorSourceUnresolved)
	return core.LocatorResolution{Element: element, Source: core.LocatorSourceUnresolved, Resolved: false}, core.ErrLocatorCascadeExhausted
}

func (s *Store) recordResolution(source core.LocatorSource) {
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("supervisor.locator.resolution", "source", source.String())
	}
}

// ConfirmSuccess records that locator was the one actually used for a
// successful AX action against (appPID, element), so Resolve's tier-2 cache
// check picks it up directly on the next call. Per §4.3, a user-override
// Locator is never written to the session cache.
func (s *Store) ConfirmSuccess(ctx context.Context, appPID int, element core.LogicalElement, locator core.Locator, source core.LocatorSource) {
	if source == core.LocatorSourceUserOverride {
		return
	}
	s.cacheLocator(ctx, appPID, element, locator)
}

func (s *Store) cachedLocator(ctx context.Context, appPID int, element core.LogicalElement) (core.Locator, bool) {
	raw, err := s.sessionCache.Get(ctx, cacheKey(appPID, element))
	if err != nil || raw == "" {
		return core.Locator{}, false
	}
	var loc core.Locator
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return core.Locator{}, false
	}
	return loc, true
}

func (s *Store) cacheLocator(ctx context.Context, appPID int, element core.LogicalElement, locator core.Locator) {
	raw, err := json.Marshal(locator)
	if err != nil {
		return
	}
	_ = s.sessionCache.Set(ctx, cacheKey(appPID, element), string(raw), 0)
}

func (s *Store) invalidateCache(ctx context.Context, appPID int, element core.LogicalElement) {
	_ = s.sessionCache.Delete(ctx, cacheKey(appPID, element))
}

// InvalidateInstance clears every cached Locator for appPID. The Lifecycle
// Manager does not call it when an Instance is removed; a removed PID's
// cache entries stay until this is called or Resolve finds a cached Locator
// no longer matches.
func (s *Store) InvalidateInstance(ctx context.Context, appPID int) {
	for _, element := range core.AllLogicalElements() {
		s.invalidateCache(ctx, appPID, element)
	}
}
