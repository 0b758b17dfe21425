package domain

// Session is the ordered, append-only log of turns owned by the runtime.
type Session []Turn

// Turn is one user-to-answer round.
type Turn struct {
	IntermediarySteps []IntermediaryStep `json:"intermediarySteps"`
}

// IntermediaryStep pairs the input that triggered a transition with the output produced.
// Both sides are pointers: the most recent step of an in-flight turn may not have an output yet.
type IntermediaryStep struct {
	OrchestrationInput  *OrchestrationInput  `json:"orchestrationInput,omitempty"`
	OrchestrationOutput *OrchestrationOutput `json:"orchestrationOutput,omitempty"`
}

// OrchestrationInput is the recorded input side of a step.
type OrchestrationInput struct {
	State OrchestrationState `json:"state"`
	Text  string             `json:"text"`
}

// OrchestrationOutput is the recorded output side of a step.
type OrchestrationOutput struct {
	Event ActionEvent `json:"event"`
	Text  string      `json:"text"`
}

// NewStep records a completed transition.
func NewStep(state OrchestrationState, input string, event ActionEvent, output string) IntermediaryStep {
	return IntermediaryStep{
		OrchestrationInput:  &OrchestrationInput{State: state, Text: input},
		OrchestrationOutput: &OrchestrationOutput{Event: event, Text: output},
	}
}

// LastStep returns the most recent step of the session, if any.
func (s Session) LastStep() (IntermediaryStep, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		steps := s[i].IntermediarySteps
		if len(steps) > 0 {
			return steps[len(steps)-1], true
		}
	}
	return IntermediaryStep{}, false
}

// Append returns a new session with step appended to the last turn,
// or to a new turn when newTurn is true. The receiver is not modified.
func (s Session) Append(step IntermediaryStep, newTurn bool) Session {
	out := make(Session, len(s), len(s)+1)
	for i, t := range s {
		out[i] = Turn{IntermediarySteps: append([]IntermediaryStep(nil), t.IntermediarySteps...)}
	}
	if newTurn || len(out) == 0 {
		return append(out, Turn{IntermediarySteps: []IntermediaryStep{step}})
	}
	last := &out[len(out)-1]
	last.IntermediarySteps = append(last.IntermediarySteps, step)
	return out
}
