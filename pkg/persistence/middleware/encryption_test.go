package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/persistence/middleware"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func secretRecord(id, secret string) *domain.SessionRecord {
	return &domain.SessionRecord{
		ID:    id,
		State: domain.StateToolInvoked,
		Context: domain.Context{
			AgentConfiguration: domain.AgentConfiguration{Instruction: "internal instruction"},
			Session: domain.Session{{IntermediarySteps: []domain.IntermediaryStep{
				domain.NewStep(domain.StateStart, secret, domain.EventInvokeModel, "{}"),
			}}},
		},
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunSessionStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	ctx := context.Background()
	sessionID := "test-session"
	require.NoError(t, secureStore.Save(ctx, sessionID, secretRecord(sessionID, "my card is 4111")))

	stored, err := underlying.Load(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, stored.Context.Session, "session log must not be stored in clear")
	assert.Empty(t, stored.Context.AgentConfiguration.Instruction)
	assert.Equal(t, domain.StateToolInvoked, stored.State)
	sealed := stored.Context.SessionAttributes["__encrypted__"]
	require.NotEmpty(t, sealed)
	assert.False(t, strings.Contains(sealed, "4111"))

	loaded, err := secureStore.Load(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "my card is 4111", loaded.Context.Session[0].IntermediarySteps[0].OrchestrationInput.Text)
	assert.Equal(t, "internal instruction", loaded.Context.AgentConfiguration.Instruction)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	storeOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	ctx := context.Background()
	sessionID := "rotation-session"
	require.NoError(t, storeOld.Save(ctx, sessionID, secretRecord(sessionID, "encrypted-with-old-key")))

	storeNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := storeNew.Load(ctx, sessionID)
	require.NoError(t, err, "fallback key must decrypt old records")
	assert.Equal(t, "encrypted-with-old-key", loaded.Context.Session[0].IntermediarySteps[0].OrchestrationInput.Text)

	require.NoError(t, storeNew.Save(ctx, sessionID, secretRecord(sessionID, "encrypted-with-new-key")))

	_, err = storeOld.Load(ctx, sessionID)
	assert.Error(t, err, "old key alone must not decrypt new records")
}

func TestEncryptionMiddleware_PlainRecordFailsClosed(t *testing.T) {
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(context.Background(), "plain", secretRecord("plain", "hi")))

	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secureStore.Load(context.Background(), "plain")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}
