// Package ax defines the narrow accessibility-driver contract the
// supervision core consumes (spec.md §6 "AX Driver contract") and wraps a
// real implementation with the circuit breaker / retry policy from
// resilience so a wedged target instance doesn't burn every tick retrying
// a driver call that is already known to be unresponsive.
package ax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeloop/supervisor/core"
	"github.com/codeloop/supervisor/resilience"
)

// Element is the subset of an accessibility-tree node the core needs:
// whatever attributes the caller asked for, already resolved to strings.
type Element struct {
	Role       string
	Attributes map[string]string
}

// Attribute returns the named attribute, or "" if the element didn't carry
// one (a missing attribute is not an error — callers treat it as empty text).
func (e Element) Attribute(name string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[name]
}

// DriverError carries the AX-specific failure kind alongside the
// underlying error, so callers can distinguish "not found" from "timeout"
// from "rejected" without string matching (spec.md §7).
type DriverError struct {
	Op   string
	Kind string
	Err  error
}

func (e *DriverError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("ax.%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// Driver is the external collaborator described in spec.md §6: query an
// element tree by locator, read attributes, perform named actions. Neither
// operation is expected to mutate the core's own state.
type Driver interface {
	// Query returns at most one element (the first match) with the
	// requested attributes populated, or core.ErrElementNotFound if the
	// locator resolves to nothing within maxDepth.
	Query(ctx context.Context, appPID int, locator core.Locator, attributesWanted []string) (Element, error)

	// Perform performs a named action (press / raise / set-value) on the
	// first element matching locator. optionalValue is used by set-value
	// actions and ignored otherwise.
	Perform(ctx context.Context, appPID int, locator core.Locator, action string, optionalValue string) error

	// IsSettable reports whether attribute can be set on element. Used by
	// the adjacent inspector feature (out of scope here), not by the core;
	// kept on the interface so a real driver implementation satisfies the
	// full external contract spec.md §6 describes.
	IsSettable(ctx context.Context, element Element, attribute string) bool
}

// Action names recognized by Perform, matching the Executor's sub-protocols
// (spec.md §4.4).
const (
	ActionPress    = "press"
	ActionRaise    = "raise"
	ActionSetValue = "set_value"
)

// GuardedDriver wraps a Driver with a circuit breaker and bounded retry, so
// a target instance whose accessibility tree has gone unresponsive trips
// the breaker instead of stalling every subsequent tick on the same timeout
// (spec.md §5 "Timeouts").
type GuardedDriver struct {
	inner         Driver
	breaker       *resilience.CircuitBreaker
	retryConfig   *resilience.RetryConfig
	actionTimeout time.Duration
	logger        core.Logger
}

// NewGuardedDriver wraps inner with a circuit breaker named for the target
// instance (so each Instance's AX calls are isolated from one another) and
// the given per-call timeout (Config.ActionTimeout).
func NewGuardedDriver(inner Driver, instanceID string, actionTimeout time.Duration, logger core.Logger) (*GuardedDriver, error) {
	if inner == nil {
		return nil, errors.New("ax: inner driver must not be nil")
	}
	breaker, err := resilience.CreateCircuitBreaker(
		fmt.Sprintf("ax-driver-%s", instanceID),
		resilience.Dependencies{Logger: logger, Metrics: resilience.NewRegistryMetricsCollector()},
	)
	if err != nil {
		return nil, fmt.Errorf("ax: create circuit breaker: %w", err)
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &GuardedDriver{
		inner:         inner,
		breaker:       breaker,
		retryConfig:   resilience.DefaultRetryConfig(),
		actionTimeout: actionTimeout,
		logger:        logger,
	}, nil
}

// Query resolves locator through the circuit breaker, translating a
// driver timeout into core.ErrDriverTimeout and mapping "no result" to
// core.ErrElementNotFound (spec.md §7 "transient AX failure").
func (g *GuardedDriver) Query(ctx context.Context, appPID int, locator core.Locator, attributesWanted []string) (Element, error) {
	var result Element
	err := resilience.RetryWithCircuitBreaker(ctx, g.retryConfig, g.breaker, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.actionTimeout)
		defer cancel()

		el, qErr := g.inner.Query(callCtx, appPID, locator, attributesWanted)
		if qErr != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("ax.Query timed out: %w", core.ErrDriverTimeout)
			}
			return qErr
		}
		result = el
		return nil
	})
	if err != nil {
		return Element{}, g.classify("Query", err)
	}
	return result, nil
}

// Perform performs action on the first element matching locator, through
// the circuit breaker and bounded retry.
func (g *GuardedDriver) Perform(ctx context.Context, appPID int, locator core.Locator, action string, optionalValue string) error {
	err := resilience.RetryWithCircuitBreaker(ctx, g.retryConfig, g.breaker, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.actionTimeout)
		defer cancel()

		pErr := g.inner.Perform(callCtx, appPID, locator, action, optionalValue)
		if pErr != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ax.Perform timed out: %w", core.ErrDriverTimeout)
		}
		return pErr
	})
	if err != nil {
		return g.classify("Perform", err)
	}
	return nil
}

// IsSettable delegates directly without circuit protection; it is not on
// the supervision core's hot path (spec.md §6).
func (g *GuardedDriver) IsSettable(ctx context.Context, element Element, attribute string) bool {
	return g.inner.IsSettable(ctx, element, attribute)
}

func (g *GuardedDriver) classify(op string, err error) error {
	if errors.Is(err, core.ErrElementNotFound) {
		return err
	}
	if errors.Is(err, core.ErrActionRejected) {
		return &DriverError{Op: op, Kind: "rejected", Err: err}
	}
	if errors.Is(err, core.ErrCircuitBreakerOpen) {
		g.logger.Warn("ax driver circuit breaker open", map[string]interface{}{"op": op})
		return fmt.Errorf("%s: %w", op, core.ErrDriverUnavailable)
	}
	if errors.Is(err, core.ErrMaxRetriesExceeded) {
		g.logger.Warn("ax driver retries exhausted", map[string]interface{}{"op": op})
		return &DriverError{Op: op, Kind: "timeout", Err: core.ErrDriverTimeout}
	}
	return &DriverError{Op: op, Kind: "unavailable", Err: err}
}
