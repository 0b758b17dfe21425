package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/testutils"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/runner"
	"github.com/aretw0/tendril/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invocationArg(t *testing.T, state domain.OrchestrationState, text string) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(domain.Invocation{
		State:   state,
		Input:   &domain.InvocationInput{Text: text},
		Context: domain.Context{AgentConfiguration: domain.AgentConfiguration{Instruction: "Be brief."}},
	})
	require.NoError(t, err)
	return map[string]interface{}{"invocation": string(data)}
}

func TestOrchestrate(t *testing.T) {
	s := NewServer(tendril.New())
	ctx := context.Background()

	res, err := s.handleOrchestrate(ctx, mcp.CallToolRequest{}, invocationArg(t, domain.StateStart, "Hello"))
	require.NoError(t, err)
	require.Len(t, res.Envelopes, 1)
	assert.Equal(t, domain.EventInvokeModel, res.Event)
	assert.False(t, res.Terminal)

	out := testutils.ModelOutputJSON(t, domain.StopReasonEndTurn, domain.TextBlock("Hi there"))
	res, err = s.handleOrchestrate(ctx, mcp.CallToolRequest{}, invocationArg(t, domain.StateModelInvoked, out))
	require.NoError(t, err)
	assert.Equal(t, domain.EventFinish, res.Event)
	assert.True(t, res.Terminal)
	assert.Equal(t, "Hi there", res.Envelopes[0].Output.Text)
}

func TestOrchestrate_Chunked(t *testing.T) {
	s := NewServer(tendril.New(tendril.WithChunkedAnswers(true)))
	out := testutils.ModelOutputJSON(t, domain.StopReasonEndTurn, domain.TextBlock("one two three"))

	res, err := s.handleOrchestrate(context.Background(), mcp.CallToolRequest{}, invocationArg(t, domain.StateModelInvoked, out))
	require.NoError(t, err)
	require.Len(t, res.Envelopes, 3)
	assert.Equal(t, domain.EventInvokeTool, res.Envelopes[0].ActionEvent)
	assert.True(t, res.Terminal)
}

func TestOrchestrate_Errors(t *testing.T) {
	s := NewServer(tendril.New())
	ctx := context.Background()

	_, err := s.handleOrchestrate(ctx, mcp.CallToolRequest{}, map[string]interface{}{})
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	_, err = s.handleOrchestrate(ctx, mcp.CallToolRequest{}, map[string]interface{}{"invocation": "{"})
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	_, err = s.handleOrchestrate(ctx, mcp.CallToolRequest{}, invocationArg(t, "SLEEPING", "x"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestReconstruct(t *testing.T) {
	s := NewServer(tendril.New())

	res, err := s.handleReconstruct(context.Background(), mcp.CallToolRequest{}, invocationArg(t, domain.StateStart, "Hello"))
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, domain.RoleUser, res.Messages[0].Role)
}

func TestInfoResource(t *testing.T) {
	tests := []struct {
		name   string
		engine *tendril.Engine
		want   string
	}{
		{"default", tendril.New(), domain.DefaultTerminalTool},
		{"configured", tendril.New(tendril.WithTerminalTool("final_reply")), "final_reply"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(tt.engine)
			contents, err := s.handleInfo(context.Background(), mcp.ReadResourceRequest{})
			require.NoError(t, err)
			require.Len(t, contents, 1)

			text, ok := contents[0].(mcp.TextResourceContents)
			require.True(t, ok)
			assert.Equal(t, InfoURI, text.URI)

			var info map[string]string
			require.NoError(t, json.Unmarshal([]byte(text.Text), &info))
			assert.Equal(t, tt.want, info["terminal_tool"])
			assert.Equal(t, domain.ProtocolVersion, info["protocol_version"])
		})
	}
}

type cannedModel struct{ answer string }

func (m cannedModel) InvokeModel(ctx context.Context, req domain.ModelRequest) (domain.ModelOutput, error) {
	return domain.ModelOutput{
		StopReason: domain.StopReasonEndTurn,
		Output:     domain.NewTextMessage(domain.RoleAssistant, m.answer),
	}, nil
}

func TestRunTurn(t *testing.T) {
	engine := tendril.New()
	r := runner.New(engine, session.NewManager(memory.NewStore()), cannedModel{answer: "pong"})
	s := NewServer(engine, WithRunner(r))

	res, err := s.handleTurn(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{
		"text":       "ping",
		"session_id": "mcp-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "mcp-1", res.SessionID)
	assert.Equal(t, "pong", res.Answer)

	_, err = s.handleTurn(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{"text": "  "})
	assert.ErrorIs(t, err, runner.ErrEmptyInput)
}
