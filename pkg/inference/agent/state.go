package agent

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State is the position of the turn loop within one request.
type State string

const (
	StateAwaitingModel  State = "awaiting_model"
	StateThinking       State = "thinking"
	StateReasoning      State = "reasoning"
	StateExecutingTools State = "executing_tools"
	StateSummarizing    State = "summarizing"
	StateDone           State = "done"
)

var transitions = map[State][]State{
	StateAwaitingModel:  {StateThinking, StateSummarizing, StateExecutingTools, StateDone},
	StateThinking:       {StateReasoning, StateDone},
	StateReasoning:      {StateExecutingTools},
	StateSummarizing:    {StateExecutingTools, StateDone},
	StateExecutingTools: {StateAwaitingModel},
	StateDone:           nil,
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type stateMachine struct {
	current State
	history []State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateAwaitingModel, history: []State{StateAwaitingModel}}
}

func (m *stateMachine) Current() State {
	return m.current
}

// To moves to next. An illegal transition is a bug in the loop and leaves the state unchanged.
func (m *stateMachine) To(next State) error {
	if !CanTransition(m.current, next) {
		err := errors.Errorf("illegal state transition %s -> %s", m.current, next)
		log.Error().Err(err).Msg("agent: state machine")
		return err
	}
	log.Trace().Str("from", string(m.current)).Str("to", string(next)).Msg("agent: state transition")
	m.current = next
	m.history = append(m.history, next)
	return nil
}

// History returns the visited states in order.
func (m *stateMachine) History() []State {
	return append([]State(nil), m.history...)
}
