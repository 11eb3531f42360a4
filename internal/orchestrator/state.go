package orchestrator

import "slices"

// State is the orchestrator's position in the playback lifecycle.
type State int

const (
	// StateIdle indicates nothing is loaded.
	StateIdle State = iota
	// StateLoaded indicates a sentence set is loaded and playback has not
	// started.
	StateLoaded
	// StatePlaying indicates a sentence is playing.
	StatePlaying
	// StatePausedUser indicates the user paused playback.
	StatePausedUser
	// StatePausedBetweenSentences indicates a scheduled or manual pause
	// window between two sentence plays.
	StatePausedBetweenSentences
	// StateResolvingTransition indicates a sentence switch is in flight.
	// Sentence-ended events arriving now are queued, not evaluated.
	StateResolvingTransition
	// StateComplete indicates the last sentence finished. Only a new load
	// leaves it.
	StateComplete
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePausedUser:
		return "paused"
	case StatePausedBetweenSentences:
		return "paused-between"
	case StateResolvingTransition:
		return "resolving"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// StateMachine validates state transitions and runs enter/exit hooks.
// It is not safe for concurrent use; the orchestrator loop owns it.
type StateMachine struct {
	current     State
	transitions map[State][]State
	onEnter     map[State]func(from State)
	onExit      map[State]func(to State)
}

// NewStateMachine creates a state machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:    {StateLoaded},
			StateLoaded:  {StatePlaying, StateResolvingTransition, StateIdle},
			StatePlaying: {StatePausedUser, StateResolvingTransition, StateComplete, StateLoaded, StateIdle},
			StatePausedUser: {
				StatePlaying, StateResolvingTransition, StateLoaded, StateIdle,
			},
			StatePausedBetweenSentences: {
				StatePlaying, StatePausedUser, StateResolvingTransition, StateLoaded, StateIdle,
			},
			StateResolvingTransition: {
				StatePlaying, StatePausedBetweenSentences, StatePausedUser, StateLoaded, StateIdle,
			},
			StateComplete: {StateLoaded, StateIdle},
		},
		onEnter: make(map[State]func(State)),
		onExit:  make(map[State]func(State)),
	}
}

// Can reports whether the machine may move to the given state.
func (sm *StateMachine) Can(to State) bool {
	return slices.Contains(sm.transitions[sm.current], to)
}

// Transition attempts to move to the given state. Exit hooks of the current
// state run before enter hooks of the new one.
func (sm *StateMachine) Transition(to State) bool {
	if !sm.Can(to) {
		return false
	}

	from := sm.current
	if exitFn, ok := sm.onExit[from]; ok && exitFn != nil {
		exitFn(to)
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn(from)
	}
	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state State, fn func(from State)) {
	sm.onEnter[state] = fn
}

// OnExit registers a callback for leaving a state.
func (sm *StateMachine) OnExit(state State, fn func(to State)) {
	sm.onExit[state] = fn
}
