package tendril

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/history"
	"github.com/aretw0/tendril/pkg/stream"
)

// Engine is the high-level entry point of the orchestration core.
// It validates an invocation, routes it and emits the resulting envelopes.
// An Engine holds no per-session state and is safe for concurrent use.
type Engine struct {
	router     *runtime.Router
	routerOpts []runtime.Option
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	chunked    bool
	Name       string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithModelConfig sets the engine-level model defaults.
// Agent configuration and per-invocation configuration still take precedence.
func WithModelConfig(cfg domain.ModelConfig) Option {
	return func(e *Engine) {
		e.routerOpts = append(e.routerOpts, runtime.WithModelConfig(cfg))
	}
}

// WithGuardrails enables the APPLY_GUARDRAILS edge for fresh utterances.
func WithGuardrails(enabled bool) Option {
	return func(e *Engine) {
		e.routerOpts = append(e.routerOpts, runtime.WithGuardrails(enabled))
	}
}

// WithTerminalTool sets the tool whose invocation carries the final answer (default: "answer").
func WithTerminalTool(name string) Option {
	return func(e *Engine) {
		e.routerOpts = append(e.routerOpts, runtime.WithTerminalTool(name))
	}
}

// WithChunkedAnswers splits FINISH answers into word fragments delivered as
// stream-tool envelopes followed by a terminal FINISH. Intended for demos and tests.
func WithChunkedAnswers(enabled bool) Option {
	return func(e *Engine) {
		e.chunked = enabled
	}
}

// WithName labels the engine in logs.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// New initializes a new Engine.
func New(opts ...Option) *Engine {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("engine", eng.Name)
	}

	eng.router = runtime.NewRouter(eng.routerOpts...)
	return eng
}

// TerminalTool returns the name of the tool that ends a turn.
func (e *Engine) TerminalTool() string {
	return e.router.TerminalTool()
}

// ModelConfig returns the model configuration resolved for c.
func (e *Engine) ModelConfig(c domain.Context) domain.ModelConfig {
	return e.router.Config(c)
}

// Decide computes the envelopes for one invocation without writing them anywhere.
// Identical invocations always yield identical envelopes.
func (e *Engine) Decide(ctx context.Context, inv domain.Invocation) ([]domain.ProtocolEnvelope, error) {
	envs, decision, err := e.decide(inv)
	if err != nil {
		e.fail(ctx, inv.State, err)
		return nil, err
	}

	e.logger.Debug("Orchestration decision",
		"state", inv.State,
		"event", decision.Event,
		"messages", decision.Messages,
		"envelopes", len(envs))
	if e.hooks.OnDecision != nil {
		e.hooks.OnDecision(ctx, &domain.DecisionEvent{
			State:    inv.State,
			Event:    decision.Event,
			Messages: decision.Messages,
			Chunks:   len(envs),
		})
	}
	return envs, nil
}

// Invoke decides and writes the envelopes to ch, closing it after the terminal one.
// Nothing is written when the decision fails; ch is closed and the error returned.
func (e *Engine) Invoke(ctx context.Context, inv domain.Invocation, ch stream.Channel) error {
	envs, err := e.Decide(ctx, inv)
	if err != nil {
		if cerr := ch.Close(); cerr != nil && !errors.Is(cerr, domain.ErrChannelClosed) {
			return errors.Join(err, cerr)
		}
		return err
	}

	if err := stream.Emit(ch, envs...); err != nil {
		err = &domain.OrchestrationError{State: inv.State, Op: "emit", Err: err}
		e.fail(ctx, inv.State, err)
		return err
	}
	return nil
}

// Reconstruct returns the conversation the model would see for inv.
func (e *Engine) Reconstruct(inv domain.Invocation) ([]domain.Message, error) {
	var pending domain.Step
	if inv.Input != nil {
		step, err := inv.Step()
		if err != nil {
			return nil, &domain.OrchestrationError{State: inv.State, Op: "parse", Err: err}
		}
		pending = step
	}
	msgs, err := history.Reconstruct(inv.Context.Session, pending)
	if err != nil {
		return nil, &domain.OrchestrationError{State: inv.State, Op: "reconstruct", Err: err}
	}
	return msgs, nil
}

func (e *Engine) decide(inv domain.Invocation) ([]domain.ProtocolEnvelope, runtime.Decision, error) {
	step, err := inv.Step()
	if err != nil {
		return nil, runtime.Decision{}, &domain.OrchestrationError{State: inv.State, Op: "parse", Err: err}
	}

	decision, err := e.router.Route(step, inv.Context)
	if err != nil {
		return nil, runtime.Decision{}, err
	}

	fresh, err := inv.Context.Clone()
	if err != nil {
		return nil, runtime.Decision{}, &domain.OrchestrationError{State: inv.State, Op: "copy context", Err: err}
	}
	env := domain.NewEnvelope(decision.Event, decision.Payload, decision.Trace, fresh)

	if !e.chunked || decision.Event != domain.EventFinish {
		return []domain.ProtocolEnvelope{env}, decision, nil
	}

	seed := fmt.Sprintf("%d:%s", len(history.FromSession(inv.Context.Session)), decision.Payload)
	envs, err := stream.Chunk(env, stream.Split(decision.Payload), seed)
	if err != nil {
		return nil, runtime.Decision{}, &domain.OrchestrationError{State: inv.State, Op: "chunk", Err: err}
	}
	return envs, decision, nil
}

func (e *Engine) fail(ctx context.Context, state domain.OrchestrationState, err error) {
	kind := domain.ErrorKind(err)
	e.logger.Warn("Orchestration failed", "state", state, "kind", kind, "error", err)
	if e.hooks.OnError != nil {
		e.hooks.OnError(ctx, &domain.ErrorEvent{State: state, Kind: kind, Err: err})
	}
}
