package history

import (
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
)

// Reconstruct rebuilds the message sequence for a session followed by the
// current, not yet recorded input. pending may be nil.
func Reconstruct(s domain.Session, pending domain.Step) ([]domain.Message, error) {
	return FromSession(s).Messages(pending)
}

// Messages replays the log into role-tagged messages and appends pending.
//
// Per entry, by input state:
//   - START emits the user utterance, unless the step only routed the
//     utterance through a guardrail (the re-entry step carries it).
//   - MODEL_INVOKED emits the model's own prior output as the assistant.
//   - TOOL_INVOKED emits the tool result block as a user message.
//
// A FINISH output on a step whose input was not MODEL_INVOKED also emits the
// answer text as the assistant; after MODEL_INVOKED that text is already part
// of the model output.
func (l Log) Messages(pending domain.Step) ([]domain.Message, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(l)+1)
	for i, e := range l {
		in, out := e.Step.OrchestrationInput, e.Step.OrchestrationOutput
		if in == nil || out == nil {
			if i == len(l)-1 {
				// In flight: the pending input stands for it.
				continue
			}
			return nil, entryError(e, "incomplete step")
		}
		if !out.Event.Valid() {
			return nil, entryError(e, fmt.Sprintf("unknown event %q", out.Event))
		}

		switch in.State {
		case domain.StateStart:
			if out.Event != domain.EventApplyGuardrails {
				msgs = append(msgs, domain.NewTextMessage(domain.RoleUser, in.Text))
			}
		case domain.StateModelInvoked:
			mo, err := domain.DecodeModelOutput(in.Text)
			if err != nil {
				return nil, entryError(e, err.Error())
			}
			msg := mo.Output
			msg.Role = domain.RoleAssistant
			msgs = append(msgs, msg)
		case domain.StateToolInvoked:
			block, err := domain.DecodeToolResultBlock(in.Text)
			if err != nil {
				return nil, entryError(e, err.Error())
			}
			msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: []domain.ContentBlock{block}})
		default:
			return nil, entryError(e, fmt.Sprintf("unknown state %q", in.State))
		}

		if out.Event == domain.EventFinish && in.State != domain.StateModelInvoked {
			msgs = append(msgs, domain.NewTextMessage(domain.RoleAssistant, out.Text))
		}
	}

	if pending != nil {
		msgs = append(msgs, PendingMessage(pending))
	}
	return msgs, nil
}

// PendingMessage converts the current input into the trailing message.
// START and TOOL_INVOKED inputs become user messages; a pending model output
// keeps the assistant role it was produced with.
func PendingMessage(step domain.Step) domain.Message {
	switch s := step.(type) {
	case domain.StartStep:
		return domain.NewTextMessage(domain.RoleUser, s.Text)
	case domain.ToolInvokedStep:
		return domain.Message{Role: domain.RoleUser, Content: []domain.ContentBlock{s.Block}}
	case domain.ModelInvokedStep:
		msg := s.Message
		msg.Role = domain.RoleAssistant
		return msg
	}
	panic(fmt.Sprintf("history: unknown step type %T", step))
}

func entryError(e Entry, reason string) error {
	return fmt.Errorf("%w: seq %d (turn %d, step %d): %s",
		domain.ErrReconstruction, e.Seq, e.Turn, e.Index, reason)
}
