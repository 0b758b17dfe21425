package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned for a state outside START, MODEL_INVOKED and TOOL_INVOKED.
	ErrInvalidState = errors.New("invalid orchestration state")
	// ErrUnrecognizedStopReason is returned when the model stopped for a reason the router has no edge for.
	ErrUnrecognizedStopReason = errors.New("unrecognized stop reason")
	// ErrNoToolUseFound is returned when the model claimed tool_use but sent no toolUse block.
	ErrNoToolUseFound = errors.New("no tool use found")
	// ErrReconstruction is returned when the session log cannot be turned into messages.
	ErrReconstruction = errors.New("conversation reconstruction failed")
	// ErrChannelClosed is returned for a write after the output channel was closed.
	ErrChannelClosed = errors.New("channel closed")
	// ErrMalformedInput is returned when the current input does not match its state's shape.
	ErrMalformedInput = errors.New("malformed input")
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// OrchestrationError annotates a failure with the state and operation that produced it.
type OrchestrationError struct {
	State OrchestrationState
	Op    string
	Err   error
}

func (e *OrchestrationError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.State, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short, stable label for the sentinel wrapped by err.
// It is meant for metric labels and log fields.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrUnrecognizedStopReason):
		return "unrecognized_stop_reason"
	case errors.Is(err, ErrNoToolUseFound):
		return "no_tool_use_found"
	case errors.Is(err, ErrReconstruction):
		return "reconstruction"
	case errors.Is(err, ErrChannelClosed):
		return "channel_closed"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	}
	return "internal"
}
