package authz

import (
	"context"
	"sync"

	id "crosslink/pkg/domain"
)

// StaticPermissions is an in-process PermissionService for tests and local
// development. Production deployments wire the platform permission service
// client instead.
type StaticPermissions struct {
	mu     sync.RWMutex
	grants map[string]struct{}
	// AllowAll short-circuits every check; handy for local development.
	AllowAll bool
}

func NewStaticPermissions() *StaticPermissions {
	return &StaticPermissions{grants: make(map[string]struct{})}
}

func grantKey(user id.UserID, permission, resourceID string) string {
	return user.String() + "|" + permission + "|" + resourceID
}

// Grant records a capability for a user on a resource.
func (s *StaticPermissions) Grant(user id.UserID, permission string, resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey(user, permission, resourceID)] = struct{}{}
}

// Revoke removes a previously granted capability.
func (s *StaticPermissions) Revoke(user id.UserID, permission string, resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, grantKey(user, permission, resourceID))
}

func (s *StaticPermissions) CheckPermission(_ context.Context, user id.UserID, permission string, resourceID string) (bool, error) {
	if s.AllowAll {
		return true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[grantKey(user, permission, resourceID)]
	return ok, nil
}
