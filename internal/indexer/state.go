package indexer

import (
	"slices"
	"sync"

	"github.com/bull/docshub/internal/apperr"
)

// State is a phase of an orchestration run.
type State string

const (
	StateIdle        State = "idle"
	StateEnumerating State = "enumerating_candidates"
	StateFetching    State = "fetching_documents"
	StateScoring     State = "scoring"
	StatePersisting  State = "persisting"
	StateRebuilding  State = "rebuilding_index"
	StateAborted     State = "aborted"
)

// transitions lists the legal successors of each state. Aborted is reachable
// from every state and only leads back to Idle.
var transitions = map[State][]State{
	StateIdle:        {StateEnumerating, StateAborted},
	StateEnumerating: {StateFetching, StateAborted},
	StateFetching:    {StateScoring, StateAborted},
	StateScoring:     {StatePersisting, StateAborted},
	StatePersisting:  {StateRebuilding, StateIdle, StateAborted},
	StateRebuilding:  {StateIdle, StateAborted},
	StateAborted:     {StateIdle},
}

// StateListener observes state changes. It is called synchronously and must
// not block.
type StateListener func(from, to State)

type stateMachine struct {
	mu        sync.Mutex
	state     State
	listeners []StateListener
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateIdle}
}

func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateMachine) subscribe(fn StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// transition moves to next, failing on an illegal edge.
func (m *stateMachine) transition(next State) error {
	m.mu.Lock()
	from := m.state
	if !slices.Contains(transitions[from], next) {
		m.mu.Unlock()
		return apperr.Errorf(apperr.KindInternal, "illegal state transition %s -> %s", from, next)
	}
	m.state = next
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(from, next)
	}
	return nil
}
