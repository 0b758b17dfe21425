package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedConfirmer struct {
	answer bool
	err    error
	asked  string
}

func (c *fixedConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	c.asked = prompt
	return c.answer, c.err
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	use := domain.ToolUse{ToolUseID: "t1", Name: "rm_rf"}

	t.Run("deny", func(t *testing.T) {
		allowed, res, err := DenyMiddleware("rm_rf")(ctx, use)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, domain.ToolStatusError, res.Status)
		assert.Equal(t, "t1", res.ToolUseID)

		allowed, _, _ = DenyMiddleware("other")(ctx, use)
		assert.True(t, allowed)
	})

	t.Run("confirmation", func(t *testing.T) {
		yes := &fixedConfirmer{answer: true}
		allowed, _, err := ConfirmationMiddleware(yes)(ctx, use)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Contains(t, yes.asked, "rm_rf")

		allowed, res, err := ConfirmationMiddleware(&fixedConfirmer{})(ctx, use)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Contains(t, res.Content[0].Text, "denied")

		_, _, err = ConfirmationMiddleware(&fixedConfirmer{err: errors.New("tty gone")})(ctx, use)
		assert.Error(t, err)
	})

	t.Run("chain stops at first block", func(t *testing.T) {
		confirm := &fixedConfirmer{answer: true}
		allowed, _, err := MultiInterceptor(AutoApproveMiddleware(), DenyMiddleware("rm_rf"), ConfirmationMiddleware(confirm))(ctx, use)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Empty(t, confirm.asked)
	})
}
