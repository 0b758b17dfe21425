package domain

import "encoding/json"

// ModelRequest is the provider-agnostic model invocation request emitted on INVOKE_MODEL.
type ModelRequest struct {
	ModelID         string          `json:"modelId"`
	System          []SystemBlock   `json:"system"`
	Messages        []Message       `json:"messages"`
	InferenceConfig InferenceConfig `json:"inferenceConfig"`
	ToolConfig      ToolConfig      `json:"toolConfig"`
}

// SystemBlock is one system prompt block.
type SystemBlock struct {
	Text string `json:"text"`
}

// InferenceConfig carries sampling parameters.
type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
}

// ToolConfig lists the tool specifications offered to the model, passed through verbatim.
type ToolConfig struct {
	Tools []json.RawMessage `json:"tools"`
}

// GuardrailRequest is the guardrail check emitted on APPLY_GUARDRAILS.
type GuardrailRequest struct {
	GuardrailIdentifier string             `json:"guardrailIdentifier"`
	GuardrailVersion    string             `json:"guardrailVersion"`
	Source              string             `json:"source"`
	Content             []GuardrailContent `json:"content"`
}

// GuardrailContent wraps the text under evaluation.
type GuardrailContent struct {
	Text GuardrailText `json:"text"`
}

// GuardrailText is the evaluated text.
type GuardrailText struct {
	Text string `json:"text"`
}

// GuardrailAssessment is the verdict a guardrail evaluator returns to the runtime.
type GuardrailAssessment struct {
	Action  string            `json:"action"`
	Outputs []GuardrailOutput `json:"outputs,omitempty"`
}

// GuardrailOutput is replacement text produced by an intervening guardrail.
type GuardrailOutput struct {
	Text string `json:"text"`
}

// Guardrail actions.
const (
	GuardrailActionNone        = "NONE"
	GuardrailActionIntervened  = "GUARDRAIL_INTERVENED"
	GuardrailDefaultBlockedMsg = "Sorry, I cannot help with that request."
)

// Intervened reports whether the guardrail blocked the content.
func (a GuardrailAssessment) Intervened() bool {
	return a.Action == GuardrailActionIntervened
}

// Message returns the text to show the user when the guardrail intervened.
func (a GuardrailAssessment) Message() string {
	for _, out := range a.Outputs {
		if out.Text != "" {
			return out.Text
		}
	}
	return GuardrailDefaultBlockedMsg
}
