package runner

import (
	"log/slog"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// DefaultMaxSteps bounds the number of core invocations per turn.
const DefaultMaxSteps = 16

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithTools sets the executor for INVOKE_TOOL.
func WithTools(tools ports.ToolExecutor) Option {
	return func(r *Runner) {
		r.tools = tools
	}
}

// WithGuardrails sets the evaluator for APPLY_GUARDRAILS.
func WithGuardrails(g ports.GuardrailEvaluator) Option {
	return func(r *Runner) {
		r.guardrails = g
	}
}

// WithAgent sets the agent configuration new sessions start with.
func WithAgent(agent domain.AgentConfiguration) Option {
	return func(r *Runner) {
		r.agent = agent
	}
}

// WithInterceptor configures the tool execution middleware.
func WithInterceptor(interceptor ToolInterceptor) Option {
	return func(r *Runner) {
		r.interceptor = interceptor
	}
}

// WithMaxSteps bounds the steps of a single turn. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}
