package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/codeloop/supervisor/ax"
	"github.com/codeloop/supervisor/core"
)

type fakeResolver struct {
	locators map[core.LogicalElement]core.Locator
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{locators: make(map[core.LogicalElement]core.Locator)}
}

func (r *fakeResolver) set(element core.LogicalElement, attribute, value string) {
	r.locators[element] = core.Locator{Criteria: []core.Criterion{{Attribute: attribute, Value: value}}}
}

func (r *fakeResolver) Resolve(ctx context.Context, appPID int, element core.LogicalElement) (core.LocatorResolution, error) {
	loc, ok := r.locators[element]
	if !ok {
		return core.LocatorResolution{Element: element}, core.ErrLocatorCascadeExhausted
	}
	return core.LocatorResolution{Element: element, Locator: loc, Resolved: true, Source: core.LocatorSourceBundledDefault}, nil
}

func testConfig() *core.Config {
	cfg := core.DefaultConfig()
	return cfg
}

func TestClassify_Unrecoverable_NoOp(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	inst.MarkUnrecoverable("element not found", time.Now())

	d, err := Classify(context.Background(), testConfig(), inst, newFakeResolver(), ax.NewFakeDriver(), time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionNoOp {
		t.Errorf("Kind = %v, want NoOp", d.Kind)
	}
}

func TestClassify_Paused_NoOp(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	inst.SetPaused(true, "operator request")

	d, err := Classify(context.Background(), testConfig(), inst, newFakeResolver(), ax.NewFakeDriver(), time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionNoOp {
		t.Errorf("Kind = %v, want NoOp", d.Kind)
	}
}

func TestClassify_RecoveryFailureCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveRecoveryFailures = 3
	inst := core.NewInstance("id", 1, "", time.Now())
	inst.IncrementRecoveryFailures()
	inst.IncrementRecoveryFailures()
	inst.IncrementRecoveryFailures()

	d, err := Classify(context.Background(), cfg, inst, newFakeResolver(), ax.NewFakeDriver(), time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionEnterUnrecoverable || d.Reason != "persistent recovery failures" {
		t.Errorf("Decision = %+v, want EnterUnrecoverable(persistent recovery failures)", d)
	}
}

func TestClassify_InterventionBudgetCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInterventionsPerPositive = 5
	inst := core.NewInstance("id", 1, "", time.Now())
	for i := 0; i < 5; i++ {
		inst.IncrementInterventions()
	}

	d, err := Classify(context.Background(), cfg, inst, newFakeResolver(), ax.NewFakeDriver(), time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionEnterParameterizedPause || d.Reason != "intervention limit" {
		t.Errorf("Decision = %+v, want EnterParameterizedPause(intervention limit)", d)
	}
}

func TestClassify_PositiveActivity(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	inst.IncrementInterventions()
	inst.IncrementRecoveryFailures()

	resolver := newFakeResolver()
	resolver.set(core.ElementGeneratingIndicatorText, "identifier", "gen")
	driver := ax.NewFakeDriver()
	driver.SetElement("identifier", "gen", ax.Element{Role: "StaticText", Attributes: map[string]string{"value": "Generating response..."}})

	d, err := Classify(context.Background(), testConfig(), inst, resolver, driver, time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionMarkPositive {
		t.Fatalf("Kind = %v, want MarkPositive", d.Kind)
	}
	if d.Detail != "Generating response..." {
		t.Errorf("Detail = %q", d.Detail)
	}
}

func TestClassify_SidebarActivity_FirstObservationPrimesBaseline(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	resolver := newFakeResolver()
	resolver.set(core.ElementSidebarActivityArea, "identifier", "sidebar")
	driver := ax.NewFakeDriver()
	driver.SetElement("identifier", "sidebar", ax.Element{Role: "Group", Attributes: map[string]string{"child_0_title": "Chat A"}})

	d, err := Classify(context.Background(), testConfig(), inst, resolver, driver, time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionNoOp {
		t.Errorf("Kind = %v, want NoOp on first observation", d.Kind)
	}
	if _, ok := inst.SidebarFingerprint(); !ok {
		t.Error("sidebar fingerprint should be primed after first observation")
	}
}

func TestClassify_SidebarActivity_ChangeDetected(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	inst.SetSidebarFingerprint("stale-hash")
	inst.IncrementInterventions()

	resolver := newFakeResolver()
	resolver.set(core.ElementSidebarActivityArea, "identifier", "sidebar")
	driver := ax.NewFakeDriver()
	driver.SetElement("identifier", "sidebar", ax.Element{Role: "Group", Attributes: map[string]string{"child_0_title": "Chat B"}})

	d, err := Classify(context.Background(), testConfig(), inst, resolver, driver, time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionNoteSidebarActivity {
		t.Fatalf("Kind = %v, want NoteSidebarActivity", d.Kind)
	}
	if d.SidebarFingerprint == "stale-hash" {
		t.Error("fingerprint should have changed")
	}
}

func TestClassify_ConnectionIssue_InterveneUnderCap(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	resolver := newFakeResolver()
	resolver.set(core.ElementConnectionErrorIndicator, "identifier", "conn-err")
	driver := ax.NewFakeDriver()
	driver.SetElement("identifier", "conn-err", ax.Element{Attributes: map[string]string{"value": "Connection lost"}})

	d, err := Classify(context.Background(), testConfig(), inst, resolver, driver, time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionIntervene || d.RecoveryKind != core.RecoveryConnection {
		t.Errorf("Decision = %+v, want Intervene(Connection)", d)
	}
}

func TestClassify_ConnectionIssue_EscalatesAtClickCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnectionResumeClicks = 3
	inst := core.NewInstance("id", 1, "", time.Now())
	inst.IncrementConnectionResumeClicks()
	inst.IncrementConnectionResumeClicks()
	inst.IncrementConnectionResumeClicks()

	resolver := newFakeResolver()
	resolver.set(core.ElementConnectionErrorIndicator, "identifier", "conn-err")
	driver := ax.NewFakeDriver()
	driver.SetElement("identifier", "conn-err", ax.Element{Attributes: map[string]string{"value": "Connection lost"}})

	d, err := Classify(context.Background(), cfg, inst, resolver, driver, time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionIntervene || d.RecoveryKind != core.RecoveryStuck {
		t.Errorf("Decision = %+v, want Intervene(Stuck) after click cap", d)
	}
	if got := inst.ConnectionResumeClicks(); got != 0 {
		t.Errorf("ConnectionResumeClicks() = %d, want reset to 0", got)
	}
}

func TestClassify_ForceStop(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	resolver := newFakeResolver()
	resolver.set(core.ElementForceStopResumeLink, "identifier", "force-stop")
	driver := ax.NewFakeDriver()
	driver.SetElement("identifier", "force-stop", ax.Element{Role: "Link"})

	d, err := Classify(context.Background(), testConfig(), inst, resolver, driver, time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionIntervene || d.RecoveryKind != core.RecoveryForceStop {
		t.Errorf("Decision = %+v, want Intervene(ForceStop)", d)
	}
}

func TestClassify_GeneralError(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	resolver := newFakeResolver()
	resolver.set(core.ElementErrorMessagePopup, "identifier", "error-popup")
	driver := ax.NewFakeDriver()
	driver.SetElement("identifier", "error-popup", ax.Element{Attributes: map[string]string{"value": "An error occurred"}})

	d, err := Classify(context.Background(), testConfig(), inst, resolver, driver, time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionIntervene || d.RecoveryKind != core.RecoveryStopGenerating {
		t.Errorf("Decision = %+v, want Intervene(StopGenerating)", d)
	}
}

func TestClassify_StuckTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.StuckTimeout = 60 * time.Second
	t0 := time.Now().Add(-2 * time.Minute)
	inst := core.NewInstance("id", 1, "", t0)

	d, err := Classify(context.Background(), cfg, inst, newFakeResolver(), ax.NewFakeDriver(), time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionIntervene || d.RecoveryKind != core.RecoveryStuck {
		t.Errorf("Decision = %+v, want Intervene(Stuck) on timeout", d)
	}
}

func TestClassify_Idle_NoOp(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	d, err := Classify(context.Background(), testConfig(), inst, newFakeResolver(), ax.NewFakeDriver(), time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.Kind != DecisionNoOp {
		t.Errorf("Kind = %v, want NoOp", d.Kind)
	}
}

func TestClassify_PendingObservationAgesOutIntoRecoveryFailure(t *testing.T) {
	cfg := testConfig()
	cfg.ObservationWindow = 3 * time.Second
	inst := core.NewInstance("id", 1, "", time.Now())
	// Mirror executor.completeIntervention's post-conditions (spec.md §4.4):
	// InterventionCountAtStart is recorded before the counter increments, so
	// a real PendingObservation always has InterventionsThisPositive() ==
	// InterventionCountAtStart+1 unless positive activity resets it to 0.
	start := time.Now().Add(-10 * time.Second)
	inst.SetPendingObservation(core.PendingObservation{RecoveryKind: core.RecoveryConnection, StartedAt: start, InterventionCountAtStart: 0})
	inst.IncrementInterventions()

	_, err := Classify(context.Background(), cfg, inst, newFakeResolver(), ax.NewFakeDriver(), time.Now())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got := inst.ConsecutiveRecoveryFailures(); got != 1 {
		t.Errorf("ConsecutiveRecoveryFailures() = %d, want 1", got)
	}
	if _, ok := inst.PendingObservation(); ok {
		t.Error("PendingObservation should be cleared after aging out")
	}
}

func TestApplyPositive(t *testing.T) {
	inst := core.NewInstance("id", 1, "", time.Now())
	inst.IncrementInterventions()
	inst.IncrementRecoveryFailures()
	inst.MarkUnrecoverable("stale", time.Now())

	now := time.Now()
	ApplyPositive(inst, "Generating", now)

	if inst.UnrecoverableReason() != "" {
		t.Error("unrecoverable_reason should be cleared")
	}
	if inst.InterventionsThisPositive() != 0 || inst.ConsecutiveRecoveryFailures() != 0 {
		t.Error("counters should be reset")
	}
	if got := inst.Status(); got.Kind != core.StatusWorking || got.Detail != "Generating" {
		t.Errorf("Status() = %+v, want Working(Generating)", got)
	}
}
