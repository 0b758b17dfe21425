// Package runtime implements the orchestration state machine: it maps a
// validated step and its context to the next action event and payload.
package runtime

import (
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/history"
)

// Decision is the router's answer for one invocation.
type Decision struct {
	Event domain.ActionEvent
	// Payload is the serialized output text of the envelope.
	Payload string
	Trace   string
	// Messages is the length of the reconstructed conversation, when one was built.
	Messages int
}

// Router is the transition table. It is pure: the same step and context
// always produce the same decision.
type Router struct {
	config       domain.ModelConfig
	terminalTool string
	guardrails   bool
}

// Option configures a Router.
type Option func(*Router)

// WithModelConfig overrides the engine-level model defaults.
func WithModelConfig(cfg domain.ModelConfig) Option {
	return func(r *Router) {
		r.config = r.config.Merge(cfg)
	}
}

// WithTerminalTool sets the tool whose invocation carries the final answer (default: "answer").
func WithTerminalTool(name string) Option {
	return func(r *Router) {
		if name != "" {
			r.terminalTool = name
		}
	}
}

// WithGuardrails routes fresh utterances through APPLY_GUARDRAILS when a guardrail is configured.
func WithGuardrails(enabled bool) Option {
	return func(r *Router) {
		r.guardrails = enabled
	}
}

// NewRouter creates a router with the default model configuration.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		config:       domain.DefaultModelConfig(),
		terminalTool: domain.DefaultTerminalTool,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TerminalTool returns the configured terminal tool name.
func (r *Router) TerminalTool() string {
	return r.terminalTool
}

// Config returns the model configuration in effect for c.
func (r *Router) Config(c domain.Context) domain.ModelConfig {
	return r.config.Resolve(c)
}

// Route selects the next event for step and builds its payload.
func (r *Router) Route(step domain.Step, c domain.Context) (Decision, error) {
	switch s := step.(type) {
	case domain.StartStep:
		cfg := r.Config(c)
		if r.guardrails && cfg.HasGuardrail() && !guardrailApplied(c.Session, s.Text) {
			return r.applyGuardrails(cfg, s)
		}
		return r.invokeModel(cfg, s, c)
	case domain.ModelInvokedStep:
		return r.routeModelOutput(s)
	case domain.ToolInvokedStep:
		return r.invokeModel(r.Config(c), s, c)
	case nil:
		return Decision{}, &domain.OrchestrationError{Op: "route", Err: fmt.Errorf("%w: no step", domain.ErrInvalidState)}
	}
	return Decision{}, &domain.OrchestrationError{Op: "route", Err: fmt.Errorf("%w: %T", domain.ErrInvalidState, step)}
}

func (r *Router) routeModelOutput(s domain.ModelInvokedStep) (Decision, error) {
	out := s.Output()
	fail := func(op string, err error) (Decision, error) {
		return Decision{}, &domain.OrchestrationError{State: domain.StateModelInvoked, Op: op, Err: err}
	}

	switch s.StopReason {
	case domain.StopReasonToolUse:
		block, err := BuildToolUsePayload(out)
		if err != nil {
			return fail("build tool use", err)
		}
		name := block.ToolUse.Name
		if name == r.terminalTool {
			answer, err := BuildFinalAnswerPayload(out, r.terminalTool)
			if err != nil {
				return fail("build final answer", err)
			}
			return Decision{
				Event:   domain.EventFinish,
				Payload: answer,
				Trace:   fmt.Sprintf("MODEL_INVOKED -> FINISH: tool %s", name),
			}, nil
		}

		payload := string(block.Raw())
		if payload == "" {
			if payload, err = encode(block); err != nil {
				return fail("encode tool use", err)
			}
		}
		return Decision{
			Event:   domain.EventInvokeTool,
			Payload: payload,
			Trace:   fmt.Sprintf("MODEL_INVOKED -> INVOKE_TOOL: tool %s (%s)", name, block.ToolUse.ToolUseID),
		}, nil

	case domain.StopReasonEndTurn:
		answer, err := BuildFinalAnswerPayload(out, r.terminalTool)
		if err != nil {
			return fail("build final answer", err)
		}
		return Decision{
			Event:   domain.EventFinish,
			Payload: answer,
			Trace:   "MODEL_INVOKED -> FINISH: end_turn",
		}, nil
	}

	return fail("route", fmt.Errorf("%w: %q", domain.ErrUnrecognizedStopReason, s.StopReason))
}

func (r *Router) invokeModel(cfg domain.ModelConfig, step domain.Step, c domain.Context) (Decision, error) {
	msgs, err := history.Reconstruct(c.Session, step)
	if err != nil {
		return Decision{}, &domain.OrchestrationError{State: step.State(), Op: "reconstruct", Err: err}
	}
	payload, err := encode(BuildModelInvocationRequest(cfg, c, msgs))
	if err != nil {
		return Decision{}, &domain.OrchestrationError{State: step.State(), Op: "encode model request", Err: err}
	}
	return Decision{
		Event:    domain.EventInvokeModel,
		Payload:  payload,
		Trace:    fmt.Sprintf("%s -> INVOKE_MODEL: %d messages", step.State(), len(msgs)),
		Messages: len(msgs),
	}, nil
}

func (r *Router) applyGuardrails(cfg domain.ModelConfig, s domain.StartStep) (Decision, error) {
	payload, err := encode(BuildGuardrailsPayload(cfg, s.Text))
	if err != nil {
		return Decision{}, &domain.OrchestrationError{State: domain.StateStart, Op: "encode guardrail request", Err: err}
	}
	return Decision{
		Event:   domain.EventApplyGuardrails,
		Payload: payload,
		Trace:   fmt.Sprintf("START -> APPLY_GUARDRAILS: %s", cfg.GuardrailID),
	}, nil
}

// guardrailApplied reports whether the session's last step already routed
// this utterance through the guardrail.
func guardrailApplied(s domain.Session, text string) bool {
	last, ok := s.LastStep()
	if !ok || last.OrchestrationInput == nil || last.OrchestrationOutput == nil {
		return false
	}
	return last.OrchestrationInput.State == domain.StateStart &&
		last.OrchestrationOutput.Event == domain.EventApplyGuardrails &&
		last.OrchestrationInput.Text == text
}
