package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	record := func(id string) *domain.SessionRecord {
		return &domain.SessionRecord{
			ID:    id,
			State: domain.StateStart,
			Context: domain.Context{
				AgentConfiguration: domain.AgentConfiguration{Instruction: "be brief", DefaultModelID: "m-1"},
				Session: domain.Session{{IntermediarySteps: []domain.IntermediaryStep{
					domain.NewStep(domain.StateStart, "hi", domain.EventFinish, "hello"),
				}}},
				SessionAttributes: map[string]string{"user": "u-1"},
			},
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, sessionID, record(sessionID))
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.ID)
		assert.Equal(t, domain.StateStart, loaded.State)
		assert.Equal(t, "be brief", loaded.Context.AgentConfiguration.Instruction)
		assert.Equal(t, "u-1", loaded.Context.SessionAttributes["user"])
		require.Equal(t, 1, loaded.Turns())
		step := loaded.Context.Session[0].IntermediarySteps[0]
		require.NotNil(t, step.OrchestrationOutput)
		assert.Equal(t, "hello", step.OrchestrationOutput.Text)
	})

	t.Run("Load returns an independent copy", func(t *testing.T) {
		rec := record(sessionID)
		require.NoError(t, store.Save(ctx, sessionID, rec))
		rec.Context.SessionAttributes["user"] = "mutated"

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "u-1", loaded.Context.SessionAttributes["user"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, record(sessionID)))

		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, record(id1)))
		require.NoError(t, store.Save(ctx, id2, record(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
