package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/testutils"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/observability"
	"github.com/aretw0/tendril/pkg/runner"
	"github.com/aretw0/tendril/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invocation(t *testing.T, state domain.OrchestrationState, text string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.Invocation{
		State: state,
		Input: &domain.InvocationInput{Text: text},
		Context: domain.Context{
			AgentConfiguration: domain.AgentConfiguration{Instruction: "Be brief."},
			SessionAttributes:  map[string]string{"user": "u-1"},
		},
	})
	require.NoError(t, err)
	return data
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetSwagger(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Info.Version)
	assert.Contains(t, doc.Components.Schemas, "Invocation")
}

func TestInvoke_JSON(t *testing.T) {
	h := NewHandler(tendril.New())

	w := do(t, h, http.MethodPost, "/v1/invocations", invocation(t, domain.StateStart, "Hello"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env domain.ProtocolEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, domain.EventInvokeModel, env.ActionEvent)
	assert.Equal(t, "1.0", env.Version)
	assert.Equal(t, "u-1", env.Context.SessionAttributes["user"])
}

func TestInvoke_Errors(t *testing.T) {
	h := NewHandler(tendril.New())

	tests := []struct {
		name   string
		body   []byte
		status int
		kind   string
	}{
		{"not json", []byte(`{`), http.StatusBadRequest, "malformed_input"},
		{"missing context", []byte(`{"state":"START","input":{"text":"hi"}}`), http.StatusBadRequest, "malformed_input"},
		{"unknown state", invocation(t, "SLEEPING", "hi"), http.StatusUnprocessableEntity, "invalid_state"},
		{"bad model output", invocation(t, domain.StateModelInvoked, "not json"), http.StatusUnprocessableEntity, "malformed_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/v1/invocations", tt.body, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestInvoke_NDJSON(t *testing.T) {
	h := NewHandler(tendril.New(tendril.WithChunkedAnswers(true)))
	out := testutils.ModelOutputJSON(t, domain.StopReasonEndTurn, domain.TextBlock("The answer is 42."))

	w := do(t, h, http.MethodPost, "/v1/invocations", invocation(t, domain.StateModelInvoked, out), ndjson)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, ndjson, w.Header().Get("Content-Type"))

	var events []domain.ActionEvent
	var answer strings.Builder
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var env domain.ProtocolEnvelope
		require.NoError(t, json.Unmarshal(sc.Bytes(), &env))
		events = append(events, env.ActionEvent)
		if env.ActionEvent == domain.EventFinish {
			answer.WriteString(env.Output.Text)
		}
	}
	require.Len(t, events, 4)
	assert.Equal(t, domain.EventFinish, events[3])
	assert.Equal(t, "42.", strings.TrimSpace(answer.String()))

	t.Run("errors keep their status", func(t *testing.T) {
		tests := []struct {
			name string
			body []byte
			kind string
		}{
			{"invalid state", invocation(t, "SLEEPING", "x"), "invalid_state"},
			{"unrecognized stop reason", invocation(t, domain.StateModelInvoked,
				testutils.ModelOutputJSON(t, domain.StopReason("max_tokens"), domain.TextBlock("cut"))), "unrecognized_stop_reason"},
			{"tool use without block", invocation(t, domain.StateModelInvoked,
				testutils.ModelOutputJSON(t, domain.StopReasonToolUse, domain.TextBlock("thinking"))), "no_tool_use_found"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := do(t, h, http.MethodPost, "/v1/invocations", tt.body, ndjson)
				require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

				var resp errorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.kind, resp.Kind)
			})
		}
	})

	t.Run("errors keep their status over the wire", func(t *testing.T) {
		srv := httptest.NewServer(h)
		defer srv.Close()

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/invocations", bytes.NewReader(invocation(t, "SLEEPING", "x")))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", ndjson)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("json clients get the array", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/v1/invocations", invocation(t, domain.StateModelInvoked, out), "")
		require.Equal(t, http.StatusOK, w.Code)
		var envs []domain.ProtocolEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envs))
		assert.Len(t, envs, 4)
	})
}

func TestHistory(t *testing.T) {
	h := NewHandler(tendril.New())

	w := do(t, h, http.MethodPost, "/v1/history", invocation(t, domain.StateStart, "Hello"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content[0].Text)
}

func TestMetaEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	engine := tendril.New(tendril.WithLifecycleHooks(metrics.Hooks()))
	h := NewHandler(engine, WithGatherer(reg))

	w := do(t, h, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/openapi.yaml", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w = do(t, h, http.MethodGet, "/info", nil, "")
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, strings.TrimSpace(tendril.Version), info["version"])
	assert.Equal(t, "1.0", info["protocol_version"])
	assert.Equal(t, domain.DefaultTerminalTool, info["terminal_tool"])

	do(t, h, http.MethodPost, "/v1/invocations", invocation(t, domain.StateStart, "Hello"), "")
	w = do(t, h, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tendril_decisions_total{event="INVOKE_MODEL",state="START"} 1`)

	w = do(t, h, http.MethodOptions, "/v1/invocations", nil, "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

type echoModel struct{}

func (echoModel) InvokeModel(ctx context.Context, req domain.ModelRequest) (domain.ModelOutput, error) {
	last := req.Messages[len(req.Messages)-1]
	return domain.ModelOutput{
		StopReason: domain.StopReasonEndTurn,
		Output:     domain.NewTextMessage(domain.RoleAssistant, "echo: "+last.Content[0].Text),
	}, nil
}

func TestSessionsAndTurns(t *testing.T) {
	engine := tendril.New()
	sessions := session.NewManager(memory.NewStore())
	h := NewHandler(engine,
		WithSessions(sessions),
		WithRunner(runner.New(engine, sessions, echoModel{})),
	)

	w := do(t, h, http.MethodPost, "/v1/sessions/s1/turns", []byte(`{"text":"ping"}`), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var turn turnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turn))
	assert.Equal(t, "s1", turn.SessionID)
	assert.Equal(t, "echo: ping", turn.Answer)
	assert.Equal(t, 2, turn.Steps)

	w = do(t, h, http.MethodPost, "/v1/sessions/s1/turns", []byte(`{"text":""}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/v1/sessions", nil, "")
	assert.JSONEq(t, `["s1"]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/sessions/s1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec domain.SessionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, 1, rec.Turns())

	w = do(t, h, http.MethodDelete, "/v1/sessions/s1", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/v1/sessions/s1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
