package ports

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
)

// Orchestrator is the stateless core as seen by adapters (HTTP, MCP, runner).
type Orchestrator interface {
	// Decide returns the envelopes for one invocation without side effects.
	Decide(ctx context.Context, inv domain.Invocation) ([]domain.ProtocolEnvelope, error)

	// Reconstruct returns the conversation the model would see for inv.
	Reconstruct(inv domain.Invocation) ([]domain.Message, error)

	// TerminalTool is the tool name the core treats as the final answer.
	TerminalTool() string
}
