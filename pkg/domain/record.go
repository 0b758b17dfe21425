package domain

// SessionRecord is a conversation as persisted by the session stores:
// the accumulated context plus the state the next invocation will carry.
type SessionRecord struct {
	ID      string             `json:"id"`
	Context Context            `json:"context"`
	State   OrchestrationState `json:"state,omitempty"`
}

// Turns returns the number of recorded turns.
func (r SessionRecord) Turns() int {
	return len(r.Context.Session)
}
