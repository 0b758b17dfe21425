package domain

// OrchestrationState identifies the phase of the reasoning loop an invocation represents.
type OrchestrationState string

const (
	// StateStart marks the beginning of a turn; the input carries the user utterance.
	StateStart OrchestrationState = "START"
	// StateModelInvoked follows a model call; the input carries the serialized ModelOutput.
	StateModelInvoked OrchestrationState = "MODEL_INVOKED"
	// StateToolInvoked follows a tool call; the input carries the serialized tool result block.
	StateToolInvoked OrchestrationState = "TOOL_INVOKED"
)

// Valid reports whether s is one of the known orchestration states.
func (s OrchestrationState) Valid() bool {
	switch s {
	case StateStart, StateModelInvoked, StateToolInvoked:
		return true
	}
	return false
}

// ActionEvent is the next action the runtime must perform.
type ActionEvent string

const (
	EventInvokeModel     ActionEvent = "INVOKE_MODEL"
	EventInvokeTool      ActionEvent = "INVOKE_TOOL"
	EventFinish          ActionEvent = "FINISH"
	EventApplyGuardrails ActionEvent = "APPLY_GUARDRAILS"
)

// Valid reports whether e is one of the known action events.
func (e ActionEvent) Valid() bool {
	switch e {
	case EventInvokeModel, EventInvokeTool, EventFinish, EventApplyGuardrails:
		return true
	}
	return false
}

// Terminal reports whether the event ends the current turn.
func (e ActionEvent) Terminal() bool {
	return e == EventFinish
}

// StopReason is the reason a model gave for ending its generation.
type StopReason string

const (
	StopReasonToolUse StopReason = "tool_use"
	StopReasonEndTurn StopReason = "end_turn"
)

const (
	// ProtocolVersion is written into every envelope.
	ProtocolVersion = "1.0"

	// DefaultTerminalTool is the tool whose invocation carries the final answer.
	DefaultTerminalTool = "answer"

	// StreamAnswerTool is the tool name used for non-terminal chunks in chunked delivery.
	StreamAnswerTool = "bedrock_stream_answer_tool"

	// GuardrailSourceInput marks a guardrail check applied to user input.
	GuardrailSourceInput = "INPUT"
)
