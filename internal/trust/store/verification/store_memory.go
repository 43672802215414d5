package verification

import (
	"context"
	"sync"

	"crosslink/internal/trust/models"
	id "crosslink/pkg/domain"
)

// InMemoryStore keeps verification records in process memory. Append-only:
// sequence numbers are assigned per attribute and stored records are never
// touched again.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.AttributeID][]*models.VerificationRecord
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.AttributeID][]*models.VerificationRecord)}
}

func (s *InMemoryStore) Append(_ context.Context, record *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	clone.Sequence = len(s.records[record.AttributeID]) + 1
	record.Sequence = clone.Sequence
	s.records[record.AttributeID] = append(s.records[record.AttributeID], &clone)
	return nil
}

func (s *InMemoryStore) ListByAttribute(_ context.Context, attributeID id.AttributeID) ([]*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.records[attributeID]
	out := make([]*models.VerificationRecord, 0, len(stored))
	for _, r := range stored {
		clone := *r
		out = append(out, &clone)
	}
	return out, nil
}
