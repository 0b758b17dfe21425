package domain

import (
	"encoding/json"
	"fmt"

	deepcopy "github.com/tiendc/go-deepcopy"
)

// Context is the read-only state the runtime passes into every invocation.
type Context struct {
	AgentConfiguration      AgentConfiguration `json:"agentConfiguration"`
	Session                 Session            `json:"session"`
	SessionAttributes       map[string]string  `json:"sessionAttributes,omitempty"`
	PromptSessionAttributes map[string]string  `json:"promptSessionAttributes,omitempty"`

	// Configuration overrides the engine's model defaults for this invocation.
	Configuration *ModelConfig `json:"configuration,omitempty"`
}

// AgentConfiguration describes the agent being orchestrated.
type AgentConfiguration struct {
	Instruction    string                  `json:"instruction"`
	DefaultModelID string                  `json:"defaultModelId,omitempty"`
	Tools          []json.RawMessage       `json:"tools,omitempty"`
	Guardrails     *GuardrailConfiguration `json:"guardrails,omitempty"`
}

// GuardrailConfiguration identifies the guardrail attached to the agent.
type GuardrailConfiguration struct {
	GuardrailIdentifier string `json:"guardrailIdentifier"`
	GuardrailVersion    string `json:"guardrailVersion"`
}

// Clone returns a deep copy of the context.
func (c Context) Clone() (Context, error) {
	var out Context
	if err := deepcopy.Copy(&out, &c); err != nil {
		return Context{}, fmt.Errorf("failed to copy context: %w", err)
	}
	return out, nil
}

// Invocation is one call from the runtime into the core.
type Invocation struct {
	State   OrchestrationState `json:"state"`
	Input   *InvocationInput   `json:"input,omitempty"`
	Context Context            `json:"context"`
}

// InvocationInput is the fresh input of the current step.
type InvocationInput struct {
	Text string `json:"text"`
}

// Step validates the invocation's state and input and returns the typed step.
func (inv Invocation) Step() (Step, error) {
	if !inv.State.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, inv.State)
	}
	if inv.Input == nil {
		return nil, fmt.Errorf("%w: state %s requires input", ErrMalformedInput, inv.State)
	}
	return ParseStep(inv.State, inv.Input.Text)
}
