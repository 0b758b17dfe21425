package domain

import "context"

// DecisionEvent describes one routing decision.
type DecisionEvent struct {
	State    OrchestrationState
	Event    ActionEvent
	Messages int
	Chunks   int
}

// ErrorEvent describes a failed invocation.
type ErrorEvent struct {
	State OrchestrationState
	Kind  string
	Err   error
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks observe decisions; they never change what is emitted.
type LifecycleHooks struct {
	OnDecision func(context.Context, *DecisionEvent)
	OnError    func(context.Context, *ErrorEvent)
}
