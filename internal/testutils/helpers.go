package testutils

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/require"
)

// ModelOutputJSON serializes a model response the way a runtime records it.
// It fails the test immediately on error.
func ModelOutputJSON(t *testing.T, stop domain.StopReason, blocks ...domain.ContentBlock) string {
	t.Helper()
	out := domain.ModelOutput{
		StopReason: stop,
		Output:     domain.Message{Role: domain.RoleAssistant, Content: blocks},
	}
	data, err := json.Marshal(out)
	require.NoError(t, err, "Failed to marshal model output")
	return string(data)
}

// ToolUseBlock builds a toolUse content block with a JSON input.
func ToolUseBlock(t *testing.T, id, name string, input any) domain.ContentBlock {
	t.Helper()
	data, err := json.Marshal(input)
	require.NoError(t, err, "Failed to marshal tool input")
	return domain.ContentBlock{ToolUse: &domain.ToolUse{ToolUseID: id, Name: name, Input: data}}
}

// ToolResultJSON serializes a successful text tool result block.
func ToolResultJSON(t *testing.T, id, text string) string {
	t.Helper()
	block := domain.ContentBlock{ToolResult: &domain.ToolResult{
		ToolUseID: id,
		Content:   []domain.ToolResultContent{{Text: text}},
		Status:    domain.ToolStatusSuccess,
	}}
	data, err := json.Marshal(block)
	require.NoError(t, err, "Failed to marshal tool result")
	return string(data)
}

// ReActTurn builds one complete turn following
// START -> MODEL_INVOKED -> TOOL_INVOKED -> MODEL_INVOKED -> FINISH.
// The index n keeps utterances and tool IDs distinct across turns.
func ReActTurn(t *testing.T, n int) domain.Turn {
	t.Helper()
	toolID := fmt.Sprintf("tool-%d", n)
	question := fmt.Sprintf("question %d", n)
	answer := fmt.Sprintf("answer %d", n)

	toolCall := ModelOutputJSON(t, domain.StopReasonToolUse,
		ToolUseBlock(t, toolID, "get_weather", map[string]string{"city": question}))
	final := ModelOutputJSON(t, domain.StopReasonToolUse,
		ToolUseBlock(t, toolID+"-answer", domain.DefaultTerminalTool, map[string]string{"text": answer}))

	return domain.Turn{IntermediarySteps: []domain.IntermediaryStep{
		domain.NewStep(domain.StateStart, question, domain.EventInvokeModel, "{}"),
		domain.NewStep(domain.StateModelInvoked, toolCall, domain.EventInvokeTool, "{}"),
		domain.NewStep(domain.StateToolInvoked, ToolResultJSON(t, toolID, "sunny"), domain.EventInvokeModel, "{}"),
		domain.NewStep(domain.StateModelInvoked, final, domain.EventFinish, answer),
	}}
}

// ReActSession builds a session of n complete ReAct turns.
func ReActSession(t *testing.T, n int) domain.Session {
	t.Helper()
	s := make(domain.Session, 0, n)
	for i := 1; i <= n; i++ {
		s = append(s, ReActTurn(t, i))
	}
	return s
}
