/*
Package runner is a reference runtime for the tendril core.

The core only decides. The runner does what a managed agent runtime would do
around it: it records every step into the session, persists the session,
and performs the action each envelope asks for (model call, tool call,
guardrail check) before invoking the core again.

# Key Components

  - Runner: drives one turn from the user utterance to the FINISH envelope.
  - ToolInterceptor: policy hook run before each tool call (approve, deny, confirm).
  - Console: line-based terminal I/O used by Chat.

# Usage

	r := runner.New(engine, sessions, invoker,
		runner.WithTools(box),
		runner.WithAgent(agent),
	)

	res, err := r.Turn(ctx, runner.TurnRequest{SessionID: "user-1", Text: "What's the weather?"})
*/
package runner
