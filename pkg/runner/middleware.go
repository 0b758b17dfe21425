package runner

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/tendril/pkg/domain"
)

// ToolInterceptor can block a tool call before it runs.
// It returns true if execution should proceed. When it blocks, the returned
// result is fed back to the model in place of the tool's output.
type ToolInterceptor func(ctx context.Context, use domain.ToolUse) (bool, domain.ToolResult, error)

// Confirmer asks a human to approve an action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// MultiInterceptor chains interceptors; the first one to block wins.
func MultiInterceptor(interceptors ...ToolInterceptor) ToolInterceptor {
	return func(ctx context.Context, use domain.ToolUse) (bool, domain.ToolResult, error) {
		for _, interceptor := range interceptors {
			allowed, result, err := interceptor(ctx, use)
			if err != nil {
				return false, domain.ToolResult{}, err
			}
			if !allowed {
				return false, result, nil
			}
		}
		return true, domain.ToolResult{}, nil
	}
}

// AutoApproveMiddleware allows everything.
func AutoApproveMiddleware() ToolInterceptor {
	return func(ctx context.Context, use domain.ToolUse) (bool, domain.ToolResult, error) {
		return true, domain.ToolResult{}, nil
	}
}

// DenyMiddleware blocks the named tools.
func DenyMiddleware(names ...string) ToolInterceptor {
	return func(ctx context.Context, use domain.ToolUse) (bool, domain.ToolResult, error) {
		if slices.Contains(names, use.Name) {
			return false, denied(use, "Tool is disabled by policy"), nil
		}
		return true, domain.ToolResult{}, nil
	}
}

// ConfirmationMiddleware asks c before every tool call.
func ConfirmationMiddleware(c Confirmer) ToolInterceptor {
	return func(ctx context.Context, use domain.ToolUse) (bool, domain.ToolResult, error) {
		ok, err := c.Confirm(ctx, fmt.Sprintf("Tool request: '%s' (ID: %s)\nInput: %s\nAllow execution?", use.Name, use.ToolUseID, use.Input))
		if err != nil {
			return false, domain.ToolResult{}, err
		}
		if !ok {
			return false, denied(use, "User denied execution by policy"), nil
		}
		return true, domain.ToolResult{}, nil
	}
}

func denied(use domain.ToolUse, reason string) domain.ToolResult {
	return domain.ToolResult{
		ToolUseID: use.ToolUseID,
		Content:   []domain.ToolResultContent{{Text: reason}},
		Status:    domain.ToolStatusError,
	}
}
