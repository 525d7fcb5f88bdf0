package ax

import (
	"context"
	"sync"

	"github.com/codeloop/supervisor/core"
)

// FakeDriver is an in-memory Driver used by classifier/executor/scheduler
// tests: elements are registered by LogicalElement-shaped keys (callers key
// by a locator's first criterion, matching how the real driver would
// resolve a Locator) and Perform calls are recorded for assertion.
type FakeDriver struct {
	mu sync.Mutex

	elements map[string]Element
	queryErr map[string]error

	performed []PerformCall
	performErr map[string]error
}

// PerformCall records one Perform invocation for test assertions.
type PerformCall struct {
	AppPID        int
	Key           string
	Action        string
	OptionalValue string
}

// NewFakeDriver returns an empty FakeDriver; every Query returns
// core.ErrElementNotFound until an element is registered.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		elements:    make(map[string]Element),
		queryErr:    make(map[string]error),
		performErr:  make(map[string]error),
	}
}

// key derives a stable lookup key from a Locator's first criterion, which
// is sufficient for the bundled default table and test fixtures (each
// LogicalElement's candidate locators use a distinct first criterion).
func key(locator core.Locator) string {
	if len(locator.Criteria) == 0 {
		return ""
	}
	c := locator.Criteria[0]
	return c.Attribute + ":" + c.Value
}

// SetElement registers el as the result for any Locator whose first
// criterion is (attribute, value).
func (f *FakeDriver) SetElement(attribute, value string, el Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[attribute+":"+value] = el
}

// RemoveElement makes the given (attribute, value) key resolve to
// core.ErrElementNotFound again.
func (f *FakeDriver) RemoveElement(attribute, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.elements, attribute+":"+value)
}

// SetQueryError forces Query to return err for the given (attribute, value)
// key, used to exercise transient-failure handling.
func (f *FakeDriver) SetQueryError(attribute, value string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr[attribute+":"+value] = err
}

// SetPerformError forces Perform to return err for the given (attribute,
// value) key.
func (f *FakeDriver) SetPerformError(attribute, value string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.performErr[attribute+":"+value] = err
}

// Query implements Driver.
func (f *FakeDriver) Query(ctx context.Context, appPID int, locator core.Locator, attributesWanted []string) (Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key(locator)
	if err, ok := f.queryErr[k]; ok {
		return Element{}, err
	}
	el, ok := f.elements[k]
	if !ok {
		return Element{}, core.ErrElementNotFound
	}
	return el, nil
}

// Perform implements Driver, recording the call for later assertion.
func (f *FakeDriver) Perform(ctx context.Context, appPID int, locator core.Locator, action string, optionalValue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key(locator)
	f.performed = append(f.performed, PerformCall{AppPID: appPID, Key: k, Action: action, OptionalValue: optionalValue})

	if err, ok := f.performErr[k]; ok {
		return err
	}
	if _, ok := f.elements[k]; !ok {
		return core.ErrElementNotFound
	}
	return nil
}

// IsSettable implements Driver; always true in the fake.
func (f *FakeDriver) IsSettable(ctx context.Context, element Element, attribute string) bool {
	return true
}

// Performed returns a copy of every Perform call recorded so far.
func (f *FakeDriver) Performed() []PerformCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PerformCall(nil), f.performed...)
}

// PerformCount returns how many times action was performed against the
// given key, for asserting "never press the same button twice" (spec.md
// §4.4).
func (f *FakeDriver) PerformCount(attribute, value, action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := attribute + ":" + value
	count := 0
	for _, p := range f.performed {
		if p.Key == k && p.Action == action {
			count++
		}
	}
	return count
}
