package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/guardrail"
	"github.com/aretw0/tendril/pkg/runner"
	"github.com/aretw0/tendril/pkg/session"
	"github.com/aretw0/tendril/pkg/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) InvokeModel(ctx context.Context, req domain.ModelRequest) (domain.ModelOutput, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.ModelOutput), args.Error(1)
}

func toolUse(id, name, input string) domain.ModelOutput {
	return domain.ModelOutput{
		StopReason: domain.StopReasonToolUse,
		Output: domain.Message{Role: domain.RoleAssistant, Content: []domain.ContentBlock{{
			ToolUse: &domain.ToolUse{ToolUseID: id, Name: name, Input: json.RawMessage(input)},
		}}},
	}
}

func endTurn(text string) domain.ModelOutput {
	return domain.ModelOutput{
		StopReason: domain.StopReasonEndTurn,
		Output:     domain.NewTextMessage(domain.RoleAssistant, text),
	}
}

func weatherBox(t *testing.T) *toolbox.Toolbox {
	t.Helper()
	box := toolbox.New()
	require.NoError(t, box.Register(toolbox.Tool{
		Spec: toolbox.Spec{
			Name:        "get_weather",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		},
		Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
			return "21C and sunny", nil
		},
	}))
	return box
}

func messageCount(n int) any {
	return mock.MatchedBy(func(req domain.ModelRequest) bool { return len(req.Messages) == n })
}

func TestRunner_ReActTurn(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, messageCount(1)).
		Return(toolUse("t1", "get_weather", `{"city":"Lisbon"}`), nil).Once()
	model.On("InvokeModel", mock.Anything, messageCount(3)).
		Return(toolUse("t2", domain.DefaultTerminalTool, `{"text":"It is 21C in Lisbon."}`), nil).Once()

	sessions := session.NewManager(memory.NewStore())
	r := runner.New(tendril.New(), sessions, model, runner.WithTools(weatherBox(t)))

	res, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "Weather in Lisbon?"})
	require.NoError(t, err)
	model.AssertExpectations(t)

	assert.Equal(t, "It is 21C in Lisbon.", res.Answer)
	assert.Equal(t, 4, res.Steps)
	assert.False(t, res.Blocked)

	stored, err := sessions.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, stored.Context.Session, 1)
	steps := stored.Context.Session[0].IntermediarySteps
	require.Len(t, steps, 4)
	assert.Equal(t, domain.EventFinish, steps[3].OrchestrationOutput.Event)

	var result domain.ContentBlock
	require.NoError(t, json.Unmarshal([]byte(steps[2].OrchestrationInput.Text), &result))
	require.NotNil(t, result.ToolResult)
	assert.Equal(t, "t1", result.ToolResult.ToolUseID)
	assert.Equal(t, "21C and sunny", result.ToolResult.Content[0].Text)

	t.Run("next turn sees history", func(t *testing.T) {
		model.On("InvokeModel", mock.Anything, messageCount(5)).Return(endTurn("You're welcome."), nil).Once()

		res, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "Thanks"})
		require.NoError(t, err)
		assert.Equal(t, "You're welcome.", res.Answer)
		assert.Equal(t, 2, res.Record.Turns())
		model.AssertExpectations(t)
	})
}

func TestRunner_MintsSessionID(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, mock.Anything).Return(endTurn("Hi!"), nil)

	r := runner.New(tendril.New(), session.NewManager(memory.NewStore()), model)
	res, err := r.Turn(context.Background(), runner.TurnRequest{Text: "Hello"})
	require.NoError(t, err)
	assert.Len(t, res.SessionID, 21)
	assert.Equal(t, "Hi!", res.Answer)
}

func TestRunner_Attributes(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, mock.MatchedBy(func(req domain.ModelRequest) bool {
		return strings.Contains(req.System[0].Text, "<key>city</key>")
	})).Return(endTurn("ok"), nil)

	r := runner.New(tendril.New(), session.NewManager(memory.NewStore()), model)
	res, err := r.Turn(context.Background(), runner.TurnRequest{
		SessionID:               "s1",
		Text:                    "Hello",
		SessionAttributes:       map[string]string{"user": "ana"},
		PromptSessionAttributes: map[string]string{"city": "Lisbon"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ana", res.Record.Context.SessionAttributes["user"])
	model.AssertExpectations(t)
}

func guardedRunner(t *testing.T, model *mockModel) *runner.Runner {
	t.Helper()
	evaluator, err := guardrail.New(guardrail.Policy{ID: "gr-1", DeniedTerms: []string{"password"}, BlockedMessage: "Not allowed."})
	require.NoError(t, err)
	agent := domain.AgentConfiguration{
		Instruction: "Be helpful.",
		Guardrails:  &domain.GuardrailConfiguration{GuardrailIdentifier: "gr-1", GuardrailVersion: "1"},
	}
	return runner.New(tendril.New(tendril.WithGuardrails(true)), session.NewManager(memory.NewStore()), model,
		runner.WithGuardrails(evaluator),
		runner.WithAgent(agent),
	)
}

func TestRunner_GuardrailBlocks(t *testing.T) {
	model := new(mockModel)
	r := guardedRunner(t, model)

	res, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "What is the admin password?"})
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, "Not allowed.", res.Answer)
	model.AssertNotCalled(t, "InvokeModel", mock.Anything, mock.Anything)

	steps := res.Record.Context.Session[0].IntermediarySteps
	require.Len(t, steps, 2)
	assert.Equal(t, domain.EventApplyGuardrails, steps[0].OrchestrationOutput.Event)
	assert.Equal(t, domain.StateStart, steps[1].OrchestrationInput.State)
	assert.Equal(t, domain.EventFinish, steps[1].OrchestrationOutput.Event)
}

func TestRunner_GuardrailPasses(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, messageCount(1)).Return(endTurn("Sunny."), nil).Once()
	r := guardedRunner(t, model)

	res, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "Weather?"})
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, "Sunny.", res.Answer)
	assert.Equal(t, 3, res.Steps)
	model.AssertExpectations(t)
}

func TestRunner_MaxSteps(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, mock.Anything).Return(toolUse("t1", "get_weather", `{"city":"Lisbon"}`), nil)

	sessions := session.NewManager(memory.NewStore())
	r := runner.New(tendril.New(), sessions, model, runner.WithTools(weatherBox(t)), runner.WithMaxSteps(3))

	_, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "Loop forever"})
	assert.ErrorIs(t, err, runner.ErrMaxSteps)

	_, err = sessions.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "a failed turn is not persisted")
}

func TestRunner_FailedTurnLeavesStoreUntouched(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, mock.Anything).Return(domain.ModelOutput{}, errors.New("model unavailable"))

	store := memory.NewStore()
	r := runner.New(tendril.New(), session.NewManager(store), model)

	_, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "Hello"})
	require.Error(t, err)

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids, "a failed first turn must not create the session")
}

func TestRunner_DeniedTool(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, messageCount(1)).
		Return(toolUse("t1", "get_weather", `{"city":"Lisbon"}`), nil).Once()
	model.On("InvokeModel", mock.Anything, mock.MatchedBy(func(req domain.ModelRequest) bool {
		if len(req.Messages) != 3 {
			return false
		}
		res := req.Messages[2].Content[0].ToolResult
		return res != nil && res.Status == domain.ToolStatusError
	})).Return(endTurn("I cannot check the weather."), nil).Once()

	r := runner.New(tendril.New(), session.NewManager(memory.NewStore()), model,
		runner.WithTools(weatherBox(t)),
		runner.WithInterceptor(runner.DenyMiddleware("get_weather")),
	)

	res, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "Weather?"})
	require.NoError(t, err)
	assert.Equal(t, "I cannot check the weather.", res.Answer)
	model.AssertExpectations(t)
}

func TestRunner_MissingCollaborators(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, mock.Anything).Return(toolUse("t1", "get_weather", `{}`), nil)

	r := runner.New(tendril.New(), session.NewManager(memory.NewStore()), model)
	_, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "Weather?"})
	assert.ErrorIs(t, err, runner.ErrNoToolExecutor)
}

func TestRunner_ChunkedAnswer(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, mock.Anything).Return(endTurn("The answer is 42."), nil)

	var seen []domain.ProtocolEnvelope
	r := runner.New(tendril.New(tendril.WithChunkedAnswers(true)), session.NewManager(memory.NewStore()), model,
		runner.WithObserver(func(env domain.ProtocolEnvelope) { seen = append(seen, env) }),
	)

	res, err := r.Turn(context.Background(), runner.TurnRequest{SessionID: "s1", Text: "?"})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", res.Answer)
	// One INVOKE_MODEL envelope, then four chunks.
	require.Len(t, seen, 5)
	assert.Equal(t, domain.EventInvokeTool, seen[1].ActionEvent)
	assert.Equal(t, domain.EventFinish, seen[4].ActionEvent)
}

func TestRunner_Chat(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, mock.Anything).Return(endTurn("Hello there!"), nil)

	var out bytes.Buffer
	console := runner.NewConsole(strings.NewReader("hi\n\nexit\nignored\n"), &out, nil)
	r := runner.New(tendril.New(), session.NewManager(memory.NewStore()), model)

	require.NoError(t, r.Chat(context.Background(), "chat-1", console))
	assert.Contains(t, out.String(), "Hello there!")
	model.AssertNumberOfCalls(t, "InvokeModel", 1)
}

func TestRunner_ChatReportsFailures(t *testing.T) {
	model := new(mockModel)
	model.On("InvokeModel", mock.Anything, mock.Anything).Return(domain.ModelOutput{StopReason: "max_tokens", Output: endTurn("").Output}, nil)

	var out bytes.Buffer
	console := runner.NewConsole(strings.NewReader("hi\n"), &out, nil)
	r := runner.New(tendril.New(), session.NewManager(memory.NewStore()), model)

	require.NoError(t, r.Chat(context.Background(), "chat-1", console))
	assert.Contains(t, out.String(), "unable to respond")
}
