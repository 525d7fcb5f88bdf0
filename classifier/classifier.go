package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/codeloop/supervisor/ax"
	"github.com/codeloop/supervisor/core"
)

// Resolver resolves a LogicalElement to a concrete Locator for a process,
// per the §4.3 cascade. locatorstore.Store satisfies this.
type Resolver interface {
	Resolve(ctx context.Context, appPID int, element core.LogicalElement) (core.LocatorResolution, error)
}

// Classify runs the §4.2 ordering for inst against cfg, querying driver
// through resolver for the elements each step needs, and returns the single
// resulting Decision. now is the tick's timestamp.
func Classify(ctx context.Context, cfg *core.Config, inst *core.Instance, resolver Resolver, driver ax.Driver, now time.Time) (Decision, error) {
	// Step 1: unrecoverable.
	if inst.UnrecoverableReason() != "" {
		return noOp(), nil
	}

	// Step 2: manual pause.
	if paused, _ := inst.Paused(); paused {
		return noOp(), nil
	}

	// Step 3: age out a stale pending observation before proceeding. The
	// Executor records InterventionCountAtStart as the pre-intervention
	// count (spec.md §4.4), so "auto was not reset to 0 since the
	// intervention" (§4.5(b)) means the current count is still above that
	// mark, not equal to it — a positive-activity reset brings it back to 0.
	if obs, ok := inst.PendingObservation(); ok {
		if obs.Age(now) > cfg.ObservationWindow && inst.InterventionsThisPositive() > obs.InterventionCountAtStart {
			inst.IncrementRecoveryFailures()
			inst.ClearPendingObservation()
		}
	}

	// Step 4: recovery-failure ceiling.
	if inst.ConsecutiveRecoveryFailures() >= cfg.MaxConsecutiveRecoveryFailures {
		return enterUnrecoverable("persistent recovery failures"), nil
	}

	// Step 5: intervention budget ceiling.
	if inst.InterventionsThisPositive() >= cfg.MaxInterventionsPerPositive {
		return enterParameterizedPause("intervention limit"), nil
	}

	// Step 6: positive-activity check.
	if text, ok := queryText(ctx, resolver, driver, inst.PID, core.ElementGeneratingIndicatorText); ok {
		if containsAny(text, cfg.PositiveKeywords) {
			return markPositive(text), nil
		}
	}

	// Step 7: sidebar-activity check.
	if cfg.SidebarMonitoringEnabled {
		if hash, ok := sidebarFingerprint(ctx, resolver, driver, inst.PID, cfg); ok {
			prior, hadPrior := inst.SidebarFingerprint()
			if !hadPrior {
				inst.SetSidebarFingerprint(hash)
			} else if prior != hash {
				inst.SetSidebarFingerprint(hash)
				return noteSidebarActivity(hash), nil
			}
		}
	}

	// Step 8: connection-issue check.
	if cfg.ConnectionRecoveryEnabled {
		if text, ok := queryText(ctx, resolver, driver, inst.PID, core.ElementConnectionErrorIndicator); ok {
			if containsAny(text, cfg.ConnectionIssueKeywords) {
				if inst.ConnectionResumeClicks() < cfg.MaxConnectionResumeClicks {
					return intervene(core.RecoveryConnection), nil
				}
				inst.ResetConnectionResumeClicks()
				return intervene(core.RecoveryStuck), nil
			}
		}
	}

	// Step 9: force-stop check.
	if cfg.ForceStopRecoveryEnabled {
		if _, ok := queryText(ctx, resolver, driver, inst.PID, core.ElementForceStopResumeLink); ok {
			return intervene(core.RecoveryForceStop), nil
		}
	}

	// Step 10: general-error check.
	if text, ok := queryText(ctx, resolver, driver, inst.PID, core.ElementErrorMessagePopup); ok {
		if containsAny(text, cfg.StuckMessageKeywords) {
			return intervene(core.RecoveryStopGenerating), nil
		}
	}

	// Step 11: stuck-timeout check.
	if cfg.StuckRecoveryEnabled {
		if now.Sub(inst.LastActivityTime()) > cfg.StuckTimeout {
			return intervene(core.RecoveryStuck), nil
		}
	}

	// Step 12: nothing matched.
	return noOp(), nil
}

// queryText resolves element and queries its text-bearing attributes,
// returning (value, true) only when the element exists. A resolution
// failure or AX query failure is treated as "element does not exist" for
// this Decision (spec.md §5 "a timed-out call is treated as element not
// found").
func queryText(ctx context.Context, resolver Resolver, driver ax.Driver, appPID int, element core.LogicalElement) (string, bool) {
	res, err := resolver.Resolve(ctx, appPID, element)
	if err != nil || !res.Resolved {
		return "", false
	}
	el, err := driver.Query(ctx, appPID, res.Locator, []string{"value", "title", "description"})
	if err != nil {
		return "", false
	}
	text := el.Attribute("value")
	if text == "" {
		text = el.Attribute("title")
	}
	if text == "" {
		text = el.Attribute("description")
	}
	return text, true
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// sidebarFingerprint resolves the sidebar activity area and hashes the
// salient attributes of its children (spec.md §4.2 step 7). Since the ax
// Driver contract (§6) returns at most one element per Query, the "first N
// children" are modeled as the N attribute values the element itself
// exposes under the configured attribute names — the real AX Driver
// implementation is expected to flatten a sidebar's visible children into
// indexed attributes (e.g. "child_0_title") before handing the Element back.
func sidebarFingerprint(ctx context.Context, resolver Resolver, driver ax.Driver, appPID int, cfg *core.Config) (string, bool) {
	res, err := resolver.Resolve(ctx, appPID, core.ElementSidebarActivityArea)
	if err != nil || !res.Resolved {
		return "", false
	}

	wanted := make([]string, 0, cfg.SidebarFingerprintChildren*len(cfg.SidebarFingerprintAttributes))
	for n := 0; n < cfg.SidebarFingerprintChildren; n++ {
		for _, attr := range cfg.SidebarFingerprintAttributes {
			wanted = append(wanted, indexedAttribute(n, attr))
		}
	}

	el, err := driver.Query(ctx, appPID, res.Locator, wanted)
	if err != nil {
		return "", false
	}

	var parts []string
	for _, attr := range wanted {
		parts = append(parts, el.Attribute(attr))
	}

	h := sha256.Sum256([]byte(strings.Join(parts, cfg.SidebarFingerprintDelimiter)))
	return hex.EncodeToString(h[:]), true
}

func indexedAttribute(n int, attr string) string {
	return "child_" + strconv.Itoa(n) + "_" + attr
}
