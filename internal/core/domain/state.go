package domain

// State is the lifecycle state of a swap. It is shared by the local view of
// a swap (TransactionDescr) and the joined hub record (Transaction): the
// hub never reports Signed nor Commited, parties never report Confirmed.
//
// States of the main path are ordered, so that comparing them tells whether a
// swap already went past a certain phase.
type State int

const (
	StateExpired State = iota - 1
	StateNew
	StatePending
	StateAccepting
	StateHold
	StateInitialized
	StateCreated
	StateSigned
	StateCommited
	StateConfirmed
	StateFinished
	StateCancelled
	StateRollback
	StateRollbackFailed
	StateDropped
	StateInvalid
)

var stateNames = map[State]string{
	StateExpired:        "Expired",
	StateNew:            "New",
	StatePending:        "Open",
	StateAccepting:      "Accepting",
	StateHold:           "Hold",
	StateInitialized:    "Initialized",
	StateCreated:        "Created",
	StateSigned:         "Signed",
	StateCommited:       "Commited",
	StateConfirmed:      "Confirmed",
	StateFinished:       "Finished",
	StateCancelled:      "Cancelled",
	StateRollback:       "Rolled Back",
	StateRollbackFailed: "Rollback Failed",
	StateDropped:        "Dropped",
	StateInvalid:        "Invalid",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsMainPath returns whether the state belongs to the ordered happy path
// going from New to Finished.
func (s State) IsMainPath() bool {
	return s >= StateNew && s <= StateFinished
}

// IsTerminal returns whether no further transition is possible from the
// state. RollbackFailed is not terminal since the refund can be retried.
func (s State) IsTerminal() bool {
	switch s {
	case StateExpired, StateFinished, StateCancelled, StateRollback,
		StateDropped, StateInvalid:
		return true
	}
	return false
}

// IsHistoric returns whether a swap in this state belongs to the history
// tables.
func (s State) IsHistoric() bool {
	return s.IsTerminal()
}

// CanMoveTo returns whether the transition graph allows going from s to next.
// Main path transitions only go forward (skipping phases is allowed, since a
// maker never sees Accepting). Cancel and Drop are only allowed before funds
// are deposited, Rollback only after. A refund that never made it to the
// chain can be abandoned for the payment once the exchange secret is known.
func (s State) CanMoveTo(next State) bool {
	if s.IsTerminal() {
		return false
	}

	switch {
	case next == StateSigned && s == StateRollbackFailed:
		return true
	case next.IsMainPath():
		return s.IsMainPath() && next > s
	case next == StateExpired:
		return s == StateNew || s == StatePending
	case next == StateCancelled, next == StateDropped:
		return s.IsMainPath() && s < StateCreated
	case next == StateRollback, next == StateRollbackFailed:
		return (s >= StateCreated && s < StateFinished) ||
			s == StateRollbackFailed
	case next == StateInvalid:
		return true
	}
	return false
}
