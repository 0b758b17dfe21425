package ports

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
)

// SessionStore persists conversations on behalf of a runtime.
// The orchestration core never touches it; hosts such as pkg/runner do.
type SessionStore interface {
	// Save persists the record under the given session ID, replacing any previous one.
	Save(ctx context.Context, sessionID string, record *domain.SessionRecord) error

	// Load retrieves the record for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.SessionRecord, error)

	// Delete removes the record for a given session ID. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
