// Package classifier implements the Classifier (spec.md §4.2): given an
// Instance and the current Config, it produces a single Decision by walking
// a fixed 12-step ordering, querying the AX Driver for the elements each
// step needs.
package classifier

import "github.com/codeloop/supervisor/core"

// DecisionKind names which of the six Decision shapes §4.2 describes was
// produced.
type DecisionKind int

const (
	DecisionNoOp DecisionKind = iota
	DecisionNoteSidebarActivity
	DecisionMarkPositive
	DecisionIntervene
	DecisionEnterParameterizedPause
	DecisionEnterUnrecoverable
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionNoteSidebarActivity:
		return "NoteSidebarActivity"
	case DecisionMarkPositive:
		return "MarkPositive"
	case DecisionIntervene:
		return "Intervene"
	case DecisionEnterParameterizedPause:
		return "EnterParameterizedPause"
	case DecisionEnterUnrecoverable:
		return "EnterUnrecoverable"
	default:
		return "NoOp"
	}
}

// Decision is the single outcome of one Classify call.
type Decision struct {
	Kind DecisionKind

	SidebarFingerprint string       // NoteSidebarActivity
	Detail             string       // MarkPositive
	RecoveryKind       core.RecoveryKind // Intervene
	Reason             string       // EnterParameterizedPause / EnterUnrecoverable
}

func noOp() Decision { return Decision{Kind: DecisionNoOp} }

func markPositive(detail string) Decision {
	return Decision{Kind: DecisionMarkPositive, Detail: detail}
}

func noteSidebarActivity(hash string) Decision {
	return Decision{Kind: DecisionNoteSidebarActivity, SidebarFingerprint: hash}
}

func intervene(kind core.RecoveryKind) Decision {
	return Decision{Kind: DecisionIntervene, RecoveryKind: kind}
}

func enterParameterizedPause(reason string) Decision {
	return Decision{Kind: DecisionEnterParameterizedPause, Reason: reason}
}

func enterUnrecoverable(reason string) Decision {
	return Decision{Kind: DecisionEnterUnrecoverable, Reason: reason}
}
