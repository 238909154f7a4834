package model

import "fmt"

// DecisionStatus tracks the lifecycle of a classified goal edit in the
// decision history. A decision starts pending and ends in exactly one of
// the terminal states.
type DecisionStatus string

const (
	DecisionPending    DecisionStatus = "pending"
	DecisionApplied    DecisionStatus = "applied"
	DecisionCancelled  DecisionStatus = "cancelled"
	DecisionSuperseded DecisionStatus = "superseded"
)

// ShieldState is the last observed shield posture, reported by status.
type ShieldState string

const (
	ShieldStateUnknown ShieldState = "unknown"
	ShieldStateActive  ShieldState = "active"
	ShieldStateCleared ShieldState = "cleared"
)

var terminalDecisionStatuses = map[DecisionStatus]bool{
	DecisionApplied:    true,
	DecisionCancelled:  true,
	DecisionSuperseded: true,
}

var validDecisionTransitions = map[DecisionStatus]map[DecisionStatus]bool{
	DecisionPending: {
		DecisionApplied:    true,
		DecisionCancelled:  true,
		DecisionSuperseded: true,
	},
}

func IsDecisionTerminal(s DecisionStatus) bool {
	return terminalDecisionStatuses[s]
}

func ValidateDecisionTransition(from, to DecisionStatus) error {
	if IsDecisionTerminal(from) {
		return fmt.Errorf("cannot transition from terminal decision status %q", from)
	}
	allowed, ok := validDecisionTransitions[from]
	if !ok {
		return fmt.Errorf("unknown decision status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid decision transition: %q → %q", from, to)
	}
	return nil
}
