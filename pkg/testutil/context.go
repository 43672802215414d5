package testutil

import (
	"context"

	"github.com/google/uuid"

	id "crosslink/pkg/domain"
	"crosslink/pkg/requestcontext"
)

// AuthedContext builds a context carrying an authenticated caller with the
// given roles. This simulates what the auth middleware would do for
// authenticated requests so service tests can skip the HTTP layer.
func AuthedContext(ctx context.Context, userID id.UserID, roles ...string) context.Context {
	ctx = requestcontext.WithUserID(ctx, userID)
	if len(roles) > 0 {
		ctx = requestcontext.WithRoles(ctx, roles)
	}
	return ctx
}

// TenantContext adds a tenant ID to the context, simulating upstream tenant
// resolution.
func TenantContext(ctx context.Context, tenantID id.TenantID) context.Context {
	return requestcontext.WithTenantID(ctx, tenantID)
}

// NewUserID returns a fresh random user ID for test fixtures.
func NewUserID() id.UserID {
	return id.UserID(uuid.New())
}

// NewContextID returns a fresh random context ID for test fixtures.
func NewContextID() id.ContextID {
	return id.ContextID(uuid.New())
}
