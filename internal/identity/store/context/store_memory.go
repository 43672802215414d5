package identitycontext

import (
	"context"
	"strings"
	"sync"

	"crosslink/internal/identity/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// InMemoryStore keeps contexts in process memory. Used by unit tests and
// local development; the postgres store is the production implementation.
type InMemoryStore struct {
	mu       sync.RWMutex
	contexts map[id.ContextID]*models.IdentityContext
	byTuple  map[string]id.ContextID
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		contexts: make(map[id.ContextID]*models.IdentityContext),
		byTuple:  make(map[string]id.ContextID),
	}
}

func tupleKey(ic *models.IdentityContext) string {
	return strings.Join([]string{ic.TenantID.String(), ic.IdentityID.String(), ic.ContextType}, ":")
}

func (s *InMemoryStore) Create(_ context.Context, ic *models.IdentityContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tupleKey(ic)
	if _, exists := s.byTuple[key]; exists {
		return sentinel.ErrConflict
	}
	clone := *ic
	s.contexts[ic.ID] = &clone
	s.byTuple[key] = ic.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, contextID id.ContextID) (*models.IdentityContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ic, exists := s.contexts[contextID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	clone := *ic
	return &clone, nil
}

func (s *InMemoryStore) Execute(_ context.Context, contextID id.ContextID, fn func(ic *models.IdentityContext) error) (*models.IdentityContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ic, exists := s.contexts[contextID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	working := *ic
	if err := fn(&working); err != nil {
		return nil, err
	}
	s.contexts[contextID] = &working
	result := working
	return &result, nil
}
