package attribute

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"crosslink/internal/identity/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// InMemoryStore keeps attributes in process memory for unit tests and local
// development.
type InMemoryStore struct {
	mu    sync.RWMutex
	attrs map[id.AttributeID]*models.ContextAttribute
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{attrs: make(map[id.AttributeID]*models.ContextAttribute)}
}

func cloneAttr(a *models.ContextAttribute) *models.ContextAttribute {
	clone := *a
	if a.Metadata != nil {
		clone.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func (s *InMemoryStore) activeByKey(contextID id.ContextID, key string) *models.ContextAttribute {
	for _, a := range s.attrs {
		if a.ContextID == contextID && a.Key == key && a.Active {
			return a
		}
	}
	return nil
}

func (s *InMemoryStore) Create(_ context.Context, attr *models.ContextAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeByKey(attr.ContextID, attr.Key) != nil {
		return sentinel.ErrConflict
	}
	s.attrs[attr.ID] = cloneAttr(attr)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, attr *models.ContextAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attrs[attr.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.attrs[attr.ID] = cloneAttr(attr)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, attributeID id.AttributeID) (*models.ContextAttribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attr, exists := s.attrs[attributeID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return cloneAttr(attr), nil
}

func (s *InMemoryStore) FindByKey(_ context.Context, contextID id.ContextID, key string) (*models.ContextAttribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attr := s.activeByKey(contextID, key)
	if attr == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneAttr(attr), nil
}

func (s *InMemoryStore) Snapshot(_ context.Context, contextID id.ContextID) (map[string]*models.ContextAttribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]*models.ContextAttribute)
	for _, a := range s.attrs {
		if a.ContextID == contextID && a.Active {
			snapshot[a.Key] = cloneAttr(a)
		}
	}
	return snapshot, nil
}

func (s *InMemoryStore) SetValue(_ context.Context, contextID id.ContextID, key, value string, sensitivity models.SensitivityLevel, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.activeByKey(contextID, key); existing != nil {
		existing.Value = value
		existing.UpdatedAt = now
		return nil
	}
	attr, err := models.NewContextAttribute(id.AttributeID(uuid.New()), contextID, key, value, sensitivity, now)
	if err != nil {
		return err
	}
	s.attrs[attr.ID] = attr
	return nil
}

func (s *InMemoryStore) Deactivate(_ context.Context, contextID id.ContextID, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attr := s.activeByKey(contextID, key)
	if attr == nil {
		return sentinel.ErrNotFound
	}
	attr.Active = false
	attr.UpdatedAt = now
	return nil
}
