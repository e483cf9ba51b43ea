package reconcile

import "gymdesk/internal/model"

// transitions: pending → reviewed | discrepancy. Nothing leaves reviewed or
// discrepancy from this service's point of view.
var transitions = map[model.ClosureStatus][]model.ClosureStatus{
	model.ClosureStatusPending: {model.ClosureStatusReviewed, model.ClosureStatusDiscrepancy},
}

// CanTransition reports whether a closure may move from one status to another.
func CanTransition(from, to model.ClosureStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func IsTerminal(s model.ClosureStatus) bool {
	return len(transitions[s]) == 0
}
