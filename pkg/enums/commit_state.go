package enums

// CommitState tracks a single checkout attempt through the engine.
type CommitState string

const (
	CommitStateIdle       CommitState = "idle"
	CommitStateValidating CommitState = "validating"
	CommitStatePersisting CommitState = "persisting"
	CommitStateCommitted  CommitState = "committed"
	CommitStateFailed     CommitState = "failed"
)

var commitTransitions = map[CommitState][]CommitState{
	CommitStateIdle:       {CommitStateValidating},
	CommitStateValidating: {CommitStatePersisting, CommitStateFailed},
	CommitStatePersisting: {CommitStateCommitted, CommitStateFailed},
}

func (s CommitState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s CommitState) IsTerminal() bool {
	return s == CommitStateCommitted || s == CommitStateFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s CommitState) CanTransitionTo(next CommitState) bool {
	for _, candidate := range commitTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
