// Package memory provides an in-process SessionStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/tendril/pkg/domain"
	deepcopy "github.com/tiendc/go-deepcopy"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.SessionRecord
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.SessionRecord),
	}
}

// Save persists a deep copy of the record.
func (s *Store) Save(ctx context.Context, sessionID string, record *domain.SessionRecord) error {
	copied, err := clone(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = copied
	return nil
}

// Load returns a copy so callers can't mutate the stored record through the pointer.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return clone(record)
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns the stored session IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}

func clone(record *domain.SessionRecord) (*domain.SessionRecord, error) {
	var out domain.SessionRecord
	if err := deepcopy.Copy(&out, record); err != nil {
		return nil, fmt.Errorf("failed to copy session record: %w", err)
	}
	return &out, nil
}
