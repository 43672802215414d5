// Package authz is the single authorization gate for the reconciliation
// subsystem. Every component checks capabilities and roles through it, so
// permission semantics cannot drift between operations.
package authz

import (
	"context"

	"golang.org/x/sync/errgroup"

	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/requestcontext"
)

// Capability names are stable contract values shared with the external
// permission service.
const (
	PermissionContextRead      = "context:read"
	PermissionContextWrite     = "context:write"
	PermissionIntegrationWrite = "integration:write"
	PermissionSyncExecute      = "sync:execute"
	PermissionSyncApprove      = "sync:approve"
)

// Role claims gating trust operations. Verification (identity proofing) and
// trust scoring (behavioral assessment) are deliberately separate roles and
// separately auditable.
const (
	RoleVerifier       = "verifier"
	RoleTrustEvaluator = "trust_evaluator"
)

//go:generate mockgen -source=authz.go -destination=mocks/permission_service.go -package=mocks

// PermissionService is the external tenant-scoped permission collaborator.
type PermissionService interface {
	// CheckPermission reports whether user holds permission on the resource.
	// A false return with nil error is a plain denial; errors are
	// infrastructure failures.
	CheckPermission(ctx context.Context, user id.UserID, permission string, resourceID string) (bool, error)
}

// Gate wraps the permission service with fail-closed semantics: any error or
// denial surfaces as CodeForbidden before state is written.
type Gate struct {
	permissions PermissionService
}

func NewGate(permissions PermissionService) *Gate {
	return &Gate{permissions: permissions}
}

// CheckContext verifies one capability against one context.
func (g *Gate) CheckContext(ctx context.Context, user id.UserID, permission string, contextID id.ContextID) error {
	if user.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	ok, err := g.permissions.CheckPermission(ctx, user, permission, contextID.String())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeForbidden, "permission check failed")
	}
	if !ok {
		return dErrors.Newf(dErrors.CodeForbidden, "missing %s on context %s", permission, contextID)
	}
	return nil
}

// CheckContexts verifies one capability against several contexts. Checks run
// concurrently; all must pass. Cross-context operations call this once with
// both involved contexts so no state is written on a partial denial.
func (g *Gate) CheckContexts(ctx context.Context, user id.UserID, permission string, contextIDs ...id.ContextID) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, contextID := range contextIDs {
		group.Go(func() error {
			return g.CheckContext(groupCtx, user, permission, contextID)
		})
	}
	return group.Wait()
}

// RequireRole gates role-scoped operations on the caller's token claims.
func (g *Gate) RequireRole(ctx context.Context, role string) error {
	if requestcontext.UserID(ctx).IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !requestcontext.HasRole(ctx, role) {
		return dErrors.Newf(dErrors.CodeForbidden, "role %q required", role)
	}
	return nil
}
