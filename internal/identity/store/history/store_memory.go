package history

import (
	"context"
	"sync"

	"crosslink/internal/identity/models"
	id "crosslink/pkg/domain"
)

// InMemoryStore keeps history entries in process memory. Entries are
// append-only; nothing here mutates or removes a stored entry.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*models.HistoryEntry
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *entry
	clone.ChangedFields = append([]string(nil), entry.ChangedFields...)
	s.entries = append(s.entries, &clone)
	return nil
}

func (s *InMemoryStore) ListByContext(_ context.Context, contextID id.ContextID) ([]*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.HistoryEntry
	for _, e := range s.entries {
		if e.ContextID == contextID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}
