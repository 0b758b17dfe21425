/*
Package domain contains the core data model of the Tendril orchestration core.

It defines the wire contract exchanged with an agent runtime (Invocation,
Session, ProtocolEnvelope), the provider-agnostic conversation types (Message,
ContentBlock, ToolUse) and the validated, per-state Step union that the router
operates on. This package is kept pure and free of I/O.

# Key Entities

  - OrchestrationState: which phase of the reasoning loop an invocation represents.
  - Session, Turn, IntermediaryStep: the append-only log owned by the runtime.
  - Step: the current input, parsed once at the boundary (StartStep, ModelInvokedStep, ToolInvokedStep).
  - ProtocolEnvelope: the single unit of output written back to the runtime.
  - ModelConfig: inference and guardrail settings, resolved per invocation.
*/
package domain
