package ports

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
)

// ModelInvoker calls a foundation model with a request built by the core.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, req domain.ModelRequest) (domain.ModelOutput, error)
}

// ToolExecutor runs the tool a model asked for and returns the result block content.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, use domain.ToolUse) (domain.ToolResult, error)
}

// GuardrailEvaluator checks content against a guardrail.
type GuardrailEvaluator interface {
	ApplyGuardrail(ctx context.Context, req domain.GuardrailRequest) (domain.GuardrailAssessment, error)
}
