package mapping

import (
	"context"
	"sort"
	"sync"

	"crosslink/internal/integration/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// InMemoryStore keeps attribute mappings in process memory for unit tests and
// local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	mappings map[id.MappingID]*models.AttributeMapping
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{mappings: make(map[id.MappingID]*models.AttributeMapping)}
}

func (s *InMemoryStore) Create(_ context.Context, mapping *models.AttributeMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.mappings {
		if m.IsActive &&
			m.SourceContextID == mapping.SourceContextID &&
			m.TargetContextID == mapping.TargetContextID &&
			m.SourceAttributeKey == mapping.SourceAttributeKey {
			return sentinel.ErrConflict
		}
	}
	clone := *mapping
	s.mappings[mapping.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, mappingID id.MappingID) (*models.AttributeMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapping, exists := s.mappings[mappingID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	clone := *mapping
	return &clone, nil
}

func (s *InMemoryStore) Delete(_ context.Context, mappingID id.MappingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.mappings[mappingID]; !exists {
		return sentinel.ErrNotFound
	}
	delete(s.mappings, mappingID)
	return nil
}

func (s *InMemoryStore) ListActiveForPass(_ context.Context, source, target id.ContextID) ([]*models.AttributeMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AttributeMapping
	for _, m := range s.mappings {
		if m.IsActive && m.SourceContextID == source && m.TargetContextID == target {
			clone := *m
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
