package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	deepcopy "github.com/tiendc/go-deepcopy"
)

// Mask replaces attribute values whose keys match a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks session and prompt
// attribute values whose keys match any of the patterns before they are stored.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, record *domain.SessionRecord) error {
	// Work on a copy: the caller keeps using its record after Save.
	var cloned domain.SessionRecord
	if err := deepcopy.Copy(&cloned, record); err != nil {
		return fmt.Errorf("failed to copy session record: %w", err)
	}

	m.mask(cloned.Context.SessionAttributes)
	m.mask(cloned.Context.PromptSessionAttributes)

	return m.next.Save(ctx, sessionID, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) mask(attrs map[string]string) {
	for k := range attrs {
		for _, p := range m.patterns {
			if p.MatchString(k) {
				attrs[k] = Mask
				break
			}
		}
	}
}
