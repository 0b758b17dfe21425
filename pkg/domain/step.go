package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Step is the validated input of one invocation. The concrete type is decided by
// the orchestration state, so every shape a state can carry is checked once here.
type Step interface {
	State() OrchestrationState
	isStep()
}

// StartStep carries a user utterance.
type StartStep struct {
	Text string
}

// ModelInvokedStep carries the model's structured response.
type ModelInvokedStep struct {
	StopReason StopReason
	Message    Message
}

// ToolInvokedStep carries the tool result block fed back to the model.
type ToolInvokedStep struct {
	Block ContentBlock
}

func (StartStep) State() OrchestrationState        { return StateStart }
func (ModelInvokedStep) State() OrchestrationState { return StateModelInvoked }
func (ToolInvokedStep) State() OrchestrationState  { return StateToolInvoked }

func (StartStep) isStep()        {}
func (ModelInvokedStep) isStep() {}
func (ToolInvokedStep) isStep()  {}

// Output returns the step as the ModelOutput it was decoded from.
func (s ModelInvokedStep) Output() ModelOutput {
	return ModelOutput{StopReason: s.StopReason, Output: s.Message}
}

// ParseStep decodes the raw input text of an invocation according to its state.
func ParseStep(state OrchestrationState, text string) (Step, error) {
	switch state {
	case StateStart:
		return StartStep{Text: text}, nil
	case StateModelInvoked:
		out, err := DecodeModelOutput(text)
		if err != nil {
			return nil, err
		}
		return ModelInvokedStep{StopReason: out.StopReason, Message: out.Output}, nil
	case StateToolInvoked:
		block, err := DecodeToolResultBlock(text)
		if err != nil {
			return nil, err
		}
		return ToolInvokedStep{Block: block}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
}

// DecodeModelOutput parses a serialized model response. The stop reason is mandatory.
func DecodeModelOutput(text string) (ModelOutput, error) {
	var out ModelOutput
	if err := decodeStrict(text, &out); err != nil {
		return ModelOutput{}, fmt.Errorf("%w: model output: %v", ErrMalformedInput, err)
	}
	if out.StopReason == "" {
		return ModelOutput{}, fmt.Errorf("%w: model output has no stopReason", ErrMalformedInput)
	}
	if out.Output.Role == "" {
		out.Output.Role = RoleAssistant
	}
	return out, nil
}

// DecodeToolResultBlock parses a serialized content block that must carry a tool result.
func DecodeToolResultBlock(text string) (ContentBlock, error) {
	var block ContentBlock
	if err := decodeStrict(text, &block); err != nil {
		return ContentBlock{}, fmt.Errorf("%w: tool result: %v", ErrMalformedInput, err)
	}
	if block.ToolResult == nil {
		return ContentBlock{}, fmt.Errorf("%w: tool result block has no toolResult", ErrMalformedInput)
	}
	return block, nil
}

func decodeStrict(text string, v any) error {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	return json.Unmarshal(trimmed, v)
}
