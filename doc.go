/*
Package tendril is a re-entrant orchestration core for LLM agents that bring
their own orchestrator.

An agent runtime calls the core once per orchestration step with the current
state (START, MODEL_INVOKED or TOOL_INVOKED), the fresh input and the whole
accumulated context, including the session log. The core answers with the next
action the runtime must take (INVOKE_MODEL, INVOKE_TOOL, APPLY_GUARDRAILS or
FINISH) wrapped in a versioned protocol envelope. It keeps no memory between
calls: the runtime persists every step and re-invokes.

# Concept

The engine is a pure function of its input. The same invocation always yields
byte-identical envelopes, so runtimes may retry freely. Model, tool and
guardrail calls are performed by the host (see pkg/runner for a reference host
and pkg/ports for the collaborator contracts).

# Usage

	eng := tendril.New(tendril.WithModelConfig(domain.ModelConfig{ModelID: "anthropic.claude-3-haiku"}))

	inv := domain.Invocation{
		State:   domain.StateStart,
		Input:   &domain.InvocationInput{Text: "What is the weather in Lisbon?"},
		Context: agentContext,
	}

	ch := stream.NewWriterChannel(os.Stdout)
	if err := eng.Invoke(ctx, inv, ch); err != nil {
		log.Fatal(err)
	}

# Errors

Every failure is terminal for the invocation and wraps one of the sentinels in
pkg/domain (ErrInvalidState, ErrUnrecognizedStopReason, ErrNoToolUseFound,
ErrReconstruction, ErrChannelClosed, ErrMalformedInput) inside a
*domain.OrchestrationError. No envelope is written for a failed invocation.
*/
package tendril
