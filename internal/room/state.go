package room

import "fmt"

// State is the client-side session state. One tagged enum with an explicit
// transition table, so illegal combinations are unrepresentable instead of
// being spread across booleans.
type State string

const (
	// StateConnecting covers local media acquisition and the join request.
	StateConnecting State = "connecting"
	// StateWaiting is a guest parked in the waiting room.
	StateWaiting State = "waiting"
	// StateReady means admitted with signaling up, session not yet started.
	StateReady State = "ready"
	// StateActive is a running viva.
	StateActive State = "active"
	// StateCompleted is terminal: the host completed the session.
	StateCompleted State = "completed"
	// StateDisconnected means the peer dropped mid-session. The lifecycle
	// never advances on disconnect; only an explicit complete ends it.
	StateDisconnected State = "disconnected"
	// StateRejected is terminal for this join attempt.
	StateRejected State = "rejected"
)

var transitions = map[State][]State{
	StateConnecting:   {StateWaiting, StateReady, StateActive, StateRejected},
	StateWaiting:      {StateReady, StateActive, StateRejected},
	StateReady:        {StateActive, StateDisconnected},
	StateActive:       {StateCompleted, StateDisconnected},
	StateDisconnected: {StateActive, StateCompleted, StateConnecting},
	StateCompleted:    {},
	StateRejected:     {},
}

// CanEnter reports whether the transition is legal.
func (s State) CanEnter(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// InvalidTransitionError reports an attempted illegal state change.
type InvalidTransitionError struct {
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid room transition %s -> %s", e.From, e.To)
}
