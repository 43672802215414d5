// Package provider defines the external identity-verification collaborator.
// The trust authority persists what the provider returns; it never computes
// verification outcomes or trust scores itself.
package provider

import (
	"context"
	"time"

	"crosslink/internal/identity/models"
	trustmodels "crosslink/internal/trust/models"
	id "crosslink/pkg/domain"
)

//go:generate mockgen -source=provider.go -destination=mocks/provider.go -package=mocks

// Client performs identity proofing against an external provider.
type Client interface {
	VerifyIdentity(ctx context.Context, identityID id.IdentityID, contextID id.ContextID, level models.VerificationLevel) (trustmodels.ProviderResult, error)
}

// MockClient returns deterministic results with a configurable latency to
// mimic real-world calls. Used in local development and tests.
type MockClient struct {
	Latency time.Duration
	// Result is returned verbatim; zero value means VERIFIED with score 0.8.
	Result *trustmodels.ProviderResult
}

func (c MockClient) VerifyIdentity(_ context.Context, _ id.IdentityID, _ id.ContextID, _ models.VerificationLevel) (trustmodels.ProviderResult, error) {
	time.Sleep(c.Latency)
	if c.Result != nil {
		return *c.Result, nil
	}
	return trustmodels.ProviderResult{
		VerificationStatus: string(models.VerificationVerified),
		TrustScore:         0.8,
	}, nil
}
