package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
)

// BuildModelInvocationRequest assembles the model request for the reconstructed conversation.
func BuildModelInvocationRequest(cfg domain.ModelConfig, c domain.Context, messages []domain.Message) domain.ModelRequest {
	tools := c.AgentConfiguration.Tools
	if tools == nil {
		tools = []json.RawMessage{}
	}
	return domain.ModelRequest{
		ModelID:         cfg.ModelID,
		System:          []domain.SystemBlock{{Text: SystemPrompt(c)}},
		Messages:        messages,
		InferenceConfig: cfg.Inference(),
		ToolConfig:      domain.ToolConfig{Tools: tools},
	}
}

// BuildToolUsePayload returns the first content block of the output that carries a tool use.
func BuildToolUsePayload(out domain.ModelOutput) (domain.ContentBlock, error) {
	block, ok := out.FirstToolUse()
	if !ok {
		return domain.ContentBlock{}, fmt.Errorf("%w: stop reason %s with %d content blocks",
			domain.ErrNoToolUseFound, out.StopReason, len(out.Output.Content))
	}
	return block, nil
}

// BuildFinalAnswerPayload extracts the answer text: the terminal tool's input
// text for tool_use, the first text block for end_turn.
func BuildFinalAnswerPayload(out domain.ModelOutput, terminalTool string) (string, error) {
	if out.StopReason == domain.StopReasonEndTurn {
		text, ok := out.FirstText()
		if !ok {
			return "", fmt.Errorf("%w: end_turn output has no text block", domain.ErrMalformedInput)
		}
		return text, nil
	}

	block, err := BuildToolUsePayload(out)
	if err != nil {
		return "", err
	}
	if block.ToolUse.Name != terminalTool {
		return "", fmt.Errorf("%w: tool %q is not the terminal tool", domain.ErrMalformedInput, block.ToolUse.Name)
	}
	var input struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(block.ToolUse.Input, &input); err != nil || input.Text == nil {
		return "", fmt.Errorf("%w: %s input has no text", domain.ErrMalformedInput, terminalTool)
	}
	return *input.Text, nil
}

// BuildGuardrailsPayload builds the guardrail check for a user utterance.
func BuildGuardrailsPayload(cfg domain.ModelConfig, text string) domain.GuardrailRequest {
	return domain.GuardrailRequest{
		GuardrailIdentifier: cfg.GuardrailID,
		GuardrailVersion:    cfg.GuardrailVersion,
		Source:              domain.GuardrailSourceInput,
		Content:             []domain.GuardrailContent{{Text: domain.GuardrailText{Text: text}}},
	}
}

// encode serializes a payload without HTML escaping so prompt markup stays readable.
func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
