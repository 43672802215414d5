package integration

import (
	"context"
	"sync"

	"crosslink/internal/integration/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// InMemoryStore keeps integrations in process memory for unit tests and local
// development.
type InMemoryStore struct {
	mu           sync.RWMutex
	integrations map[id.IntegrationID]*models.Integration
	byPair       map[string]id.IntegrationID
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		integrations: make(map[id.IntegrationID]*models.Integration),
		byPair:       make(map[string]id.IntegrationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, integration *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := models.PairKey(integration.SourceContextID, integration.TargetContextID)
	if _, exists := s.byPair[pair]; exists {
		return sentinel.ErrConflict
	}
	clone := *integration
	s.integrations[integration.ID] = &clone
	s.byPair[pair] = integration.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, integrationID id.IntegrationID) (*models.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integration, exists := s.integrations[integrationID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	clone := *integration
	return &clone, nil
}

func (s *InMemoryStore) Update(_ context.Context, integration *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.integrations[integration.ID]; !exists {
		return sentinel.ErrNotFound
	}
	clone := *integration
	s.integrations[integration.ID] = &clone
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, integrationID id.IntegrationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, exists := s.integrations[integrationID]
	if !exists {
		return sentinel.ErrNotFound
	}
	delete(s.byPair, models.PairKey(integration.SourceContextID, integration.TargetContextID))
	delete(s.integrations, integrationID)
	return nil
}
