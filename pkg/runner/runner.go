package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/session"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrMaxSteps is returned when a turn does not reach FINISH within the step budget.
	ErrMaxSteps = errors.New("turn exceeded maximum steps")
	// ErrNoToolExecutor is returned when the model asks for a tool and none is configured.
	ErrNoToolExecutor = errors.New("no tool executor configured")
	// ErrNoGuardrailEvaluator is returned when the core asks for a guardrail check and none is configured.
	ErrNoGuardrailEvaluator = errors.New("no guardrail evaluator configured")
)

// TurnRequest is one user utterance.
type TurnRequest struct {
	// SessionID selects the conversation. A new ID is minted when empty.
	SessionID string
	Text      string

	// SessionAttributes are merged into the session and persist across turns.
	SessionAttributes map[string]string
	// PromptSessionAttributes apply to this turn only.
	PromptSessionAttributes map[string]string
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	SessionID string
	Answer    string
	Steps     int
	// Blocked is true when a guardrail intervened and Answer is its message.
	Blocked bool
	Record  *domain.SessionRecord
}

// Runner drives turns through the core, performing the side effects it asks for.
type Runner struct {
	engine     ports.Orchestrator
	sessions   *session.Manager
	model      ports.ModelInvoker
	tools      ports.ToolExecutor
	guardrails ports.GuardrailEvaluator

	agent       domain.AgentConfiguration
	interceptor ToolInterceptor
	maxSteps    int
	logger      *slog.Logger
	observer    func(domain.ProtocolEnvelope)
}

// New creates a Runner.
func New(engine ports.Orchestrator, sessions *session.Manager, model ports.ModelInvoker, opts ...Option) *Runner {
	r := &Runner{
		engine:      engine,
		sessions:    sessions,
		model:       model,
		interceptor: AutoApproveMiddleware(),
		maxSteps:    DefaultMaxSteps,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithObserver registers a callback that sees every envelope the core returns.
func WithObserver(fn func(domain.ProtocolEnvelope)) Option {
	return func(r *Runner) {
		r.observer = fn
	}
}

// Turn runs one turn under the session lock. The session is saved only when
// the turn reaches FINISH; a failed turn leaves the stored session untouched.
func (r *Runner) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	text, err := SanitizeInput(req.Text)
	if err != nil {
		return nil, err
	}
	id := req.SessionID
	if id == "" {
		if id, err = gonanoid.New(); err != nil {
			return nil, fmt.Errorf("failed to generate session id: %w", err)
		}
	}

	res := &TurnResult{SessionID: id}
	record, err := r.sessions.Update(ctx, id, r.agent, func(rec *domain.SessionRecord) error {
		if len(req.SessionAttributes) > 0 {
			if rec.Context.SessionAttributes == nil {
				rec.Context.SessionAttributes = make(map[string]string, len(req.SessionAttributes))
			}
			maps.Copy(rec.Context.SessionAttributes, req.SessionAttributes)
		}
		rec.Context.PromptSessionAttributes = req.PromptSessionAttributes
		return r.run(ctx, rec, text, res)
	})
	if err != nil {
		r.logger.Warn("Turn failed", "session_id", id, "error", err)
		return nil, err
	}
	res.Record = record
	r.logger.Info("Turn finished", "session_id", id, "steps", res.Steps, "blocked", res.Blocked)
	return res, nil
}

func (r *Runner) run(ctx context.Context, rec *domain.SessionRecord, text string, res *TurnResult) error {
	state, input := domain.StateStart, text
	newTurn := true

	for res.Steps < r.maxSteps {
		if err := ctx.Err(); err != nil {
			return err
		}

		envs, err := r.engine.Decide(ctx, domain.Invocation{
			State:   state,
			Input:   &domain.InvocationInput{Text: input},
			Context: rec.Context,
		})
		if err != nil {
			return err
		}
		res.Steps++
		final := envs[len(envs)-1]
		output := final.Output.Text
		if len(envs) > 1 {
			if output, err = joinChunks(envs); err != nil {
				return err
			}
		}
		if r.observer != nil {
			for _, env := range envs {
				r.observer(env)
			}
		}

		rec.Context.Session = rec.Context.Session.Append(domain.NewStep(state, input, final.ActionEvent, output), newTurn)
		newTurn = false
		r.logger.Debug("Step recorded", "session_id", rec.ID, "state", state, "event", final.ActionEvent)

		switch final.ActionEvent {
		case domain.EventFinish:
			res.Answer = output
			rec.State = domain.StateStart
			return nil

		case domain.EventInvokeModel:
			next, err := r.invokeModel(ctx, output)
			if err != nil {
				return err
			}
			state, input = domain.StateModelInvoked, next

		case domain.EventInvokeTool:
			next, err := r.invokeTool(ctx, output)
			if err != nil {
				return err
			}
			state, input = domain.StateToolInvoked, next

		case domain.EventApplyGuardrails:
			blocked, msg, err := r.applyGuardrails(ctx, output)
			if err != nil {
				return err
			}
			if blocked {
				rec.Context.Session = rec.Context.Session.Append(domain.NewStep(domain.StateStart, text, domain.EventFinish, msg), false)
				res.Answer, res.Blocked = msg, true
				rec.State = domain.StateStart
				return nil
			}
			// Re-enter START with the same text; the recorded check lets it through.
			state, input = domain.StateStart, text

		default:
			return fmt.Errorf("unexpected action event %q", final.ActionEvent)
		}
	}
	return fmt.Errorf("%w: %d", ErrMaxSteps, r.maxSteps)
}

func (r *Runner) invokeModel(ctx context.Context, payload string) (string, error) {
	var req domain.ModelRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", fmt.Errorf("failed to decode model request: %w", err)
	}
	out, err := r.model.InvokeModel(ctx, req)
	if err != nil {
		return "", fmt.Errorf("model invocation failed: %w", err)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode model output: %w", err)
	}
	return string(data), nil
}

func (r *Runner) invokeTool(ctx context.Context, payload string) (string, error) {
	var block domain.ContentBlock
	if err := json.Unmarshal([]byte(payload), &block); err != nil {
		return "", fmt.Errorf("failed to decode tool use: %w", err)
	}
	if block.ToolUse == nil {
		return "", fmt.Errorf("%w: INVOKE_TOOL payload has no toolUse", domain.ErrMalformedInput)
	}
	use := *block.ToolUse

	allowed, result, err := r.interceptor(ctx, use)
	if err != nil {
		return "", fmt.Errorf("tool interceptor error: %w", err)
	}
	if allowed {
		if r.tools == nil {
			return "", ErrNoToolExecutor
		}
		result, err = r.tools.ExecuteTool(ctx, use)
		if err != nil {
			return "", fmt.Errorf("tool execution failed: %w", err)
		}
	} else {
		r.logger.Info("Tool call blocked", "tool", use.Name, "tool_use_id", use.ToolUseID)
	}
	if result.ToolUseID == "" {
		result.ToolUseID = use.ToolUseID
	}

	data, err := json.Marshal(domain.ContentBlock{ToolResult: &result})
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(data), nil
}

func (r *Runner) applyGuardrails(ctx context.Context, payload string) (bool, string, error) {
	if r.guardrails == nil {
		return false, "", ErrNoGuardrailEvaluator
	}
	var req domain.GuardrailRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return false, "", fmt.Errorf("failed to decode guardrail request: %w", err)
	}
	assessment, err := r.guardrails.ApplyGuardrail(ctx, req)
	if err != nil {
		return false, "", fmt.Errorf("guardrail evaluation failed: %w", err)
	}
	if !assessment.Intervened() {
		return false, "", nil
	}
	return true, assessment.Message(), nil
}

// joinChunks rebuilds the answer delivered as stream chunks followed by a FINISH.
func joinChunks(envs []domain.ProtocolEnvelope) (string, error) {
	var b strings.Builder
	for _, env := range envs[:len(envs)-1] {
		var block domain.ContentBlock
		if err := json.Unmarshal([]byte(env.Output.Text), &block); err != nil || block.ToolUse == nil {
			return "", fmt.Errorf("%w: malformed stream chunk", domain.ErrMalformedInput)
		}
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(block.ToolUse.Input, &in); err != nil {
			return "", fmt.Errorf("%w: malformed stream chunk input", domain.ErrMalformedInput)
		}
		b.WriteString(in.Text)
	}
	b.WriteString(envs[len(envs)-1].Output.Text)
	return b.String(), nil
}
