package model

// State identifies where a run is in its lifecycle.
type State string

// Run lifecycle states.
const (
	StateScheduled  State = "scheduled"
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateCancelling State = "cancelling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StateCrashed    State = "crashed"
	StateTimedOut   State = "timed_out"
	StateCached     State = "cached"
)

// Class groups states for hook dispatch. Cached runs are a completed
// variant, so they share the completed class.
type Class string

// State classes.
const (
	ClassRunning    Class = "running"
	ClassCompleted  Class = "completed"
	ClassFailed     Class = "failed"
	ClassCancelling Class = "cancelling"
	ClassCrashed    Class = "crashed"
)

// validTransitions maps each state to the set of states it may transition to.
var validTransitions = map[State]map[State]bool{
	StateScheduled: {
		StatePending:   true,
		StateFailed:    true,
		StateCancelled: true,
	},
	StatePending: {
		StateRunning:   true,
		StateCached:    true,
		StateFailed:    true,
		StateCancelled: true,
	},
	StateRunning: {
		StateCompleted:  true,
		StateFailed:     true,
		StateTimedOut:   true,
		StateCancelling: true,
		StateCrashed:    true,
	},
	StateCancelling: {
		StateCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether no further automatic transition occurs from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateCrashed, StateTimedOut, StateCached:
		return true
	}
	return false
}

// FailedLike reports whether s counts as a failure for downstream propagation.
// TimedOut is treated identically to Failed here; it differs only in label.
func (s State) FailedLike() bool {
	switch s {
	case StateFailed, StateTimedOut, StateCrashed:
		return true
	}
	return false
}

// CompletedLike reports whether s carries a usable result value.
func (s State) CompletedLike() bool {
	return s == StateCompleted || s == StateCached
}

// StateClass returns the hook dispatch class for s. States with no hook
// class (scheduled, pending) return the empty class.
func (s State) StateClass() Class {
	switch s {
	case StateRunning:
		return ClassRunning
	case StateCompleted, StateCached:
		return ClassCompleted
	case StateFailed, StateTimedOut:
		return ClassFailed
	case StateCancelling, StateCancelled:
		return ClassCancelling
	case StateCrashed:
		return ClassCrashed
	}
	return ""
}
