package session

import "fmt"

// State enumerates the session controller states.
type State string

const (
	StateLoading    State = "LOADING"
	StateNotStarted State = "NOT_STARTED"
	StateInProgress State = "IN_PROGRESS"
	StateSubmitting State = "SUBMITTING"
	StateCompleted  State = "COMPLETED"
	StateExpired    State = "EXPIRED"
	StateError      State = "ERROR"
)

var transitions = map[State][]State{
	StateLoading:    {StateNotStarted, StateError},
	StateNotStarted: {StateInProgress},
	StateInProgress: {StateSubmitting, StateExpired},
	StateSubmitting: {StateCompleted},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Live reports whether a server-side session is open in s.
func (s State) Live() bool {
	return s == StateInProgress || s == StateSubmitting
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}
