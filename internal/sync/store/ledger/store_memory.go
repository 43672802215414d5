package ledger

import (
	"context"
	"sort"
	"sync"

	"crosslink/internal/sync/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// InMemoryStore keeps ledger entries in process memory for unit tests and
// local development.
type InMemoryStore struct {
	mu  sync.RWMutex
	ops map[id.SyncID]*models.Operation
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{ops: make(map[id.SyncID]*models.Operation)}
}

func (s *InMemoryStore) Create(_ context.Context, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ops[op.ID]; exists {
		return sentinel.ErrConflict
	}
	s.ops[op.ID] = op.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, syncID id.SyncID) (*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, exists := s.ops[syncID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return op.Clone(), nil
}

func (s *InMemoryStore) ListByIntegration(_ context.Context, integrationID id.IntegrationID) ([]*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Operation
	for _, op := range s.ops {
		if op.IntegrationID == integrationID {
			out = append(out, op.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *InMemoryStore) TransitionFromPending(_ context.Context, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.ops[op.ID]
	if !exists {
		return sentinel.ErrNotFound
	}
	if stored.Status != models.SyncPendingApproval {
		return sentinel.ErrInvalidState
	}
	s.ops[op.ID] = op.Clone()
	return nil
}
