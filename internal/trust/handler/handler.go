// Package handler wires trust and verification endpoints to the trust
// authority.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	identitymodels "crosslink/internal/identity/models"
	trustmodels "crosslink/internal/trust/models"
	"crosslink/internal/trust/service"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/httputil"
	"crosslink/pkg/requestcontext"
)

// Service defines the trust operations exposed over HTTP.
type Service interface {
	VerifyAttribute(ctx context.Context, cmd service.VerifyAttributeCommand) (*identitymodels.ContextAttribute, error)
	RequestVerification(ctx context.Context, attributeID id.AttributeID, source, notes string, evidence map[string]string) (*identitymodels.ContextAttribute, error)
	UpdateVerificationLevel(ctx context.Context, contextID id.ContextID, level identitymodels.VerificationLevel, reason, source string) (*identitymodels.IdentityContext, error)
	UpdateTrustScore(ctx context.Context, contextID id.ContextID, score float64, reason, source string) (*identitymodels.IdentityContext, error)
	VerifyIdentity(ctx context.Context, contextID id.ContextID, level identitymodels.VerificationLevel) (*identitymodels.IdentityContext, error)
	GetVerificationTrail(ctx context.Context, attributeID id.AttributeID) ([]*trustmodels.VerificationRecord, error)
}

// Handler wires trust endpoints to the trust authority.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a trust handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts trust endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/attributes/{attributeID}/verification-requests", h.HandleRequestVerification)
	r.Post("/attributes/{attributeID}/verify", h.HandleVerifyAttribute)
	r.Get("/attributes/{attributeID}/verification-trail", h.HandleGetVerificationTrail)
	r.Put("/contexts/{contextID}/verification-level", h.HandleUpdateVerificationLevel)
	r.Put("/contexts/{contextID}/trust-score", h.HandleUpdateTrustScore)
	r.Post("/contexts/{contextID}/verify-identity", h.HandleVerifyIdentity)
}

type verificationRequest struct {
	Source   string            `json:"verification_source"`
	Notes    string            `json:"notes,omitempty"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

// HandleRequestVerification handles POST /attributes/{attributeID}/verification-requests.
func (h *Handler) HandleRequestVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	attributeID, err := id.ParseAttributeID(chi.URLParam(r, "attributeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[verificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	attr, err := h.service.RequestVerification(ctx, attributeID, req.Source, req.Notes, req.Evidence)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification request failed",
			"request_id", requestID,
			"attribute_id", attributeID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attr)
}

type verifyAttributeRequest struct {
	Status   string            `json:"verification_status"`
	Source   string            `json:"verification_source"`
	Notes    string            `json:"notes,omitempty"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

// HandleVerifyAttribute handles POST /attributes/{attributeID}/verify.
func (h *Handler) HandleVerifyAttribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	attributeID, err := id.ParseAttributeID(chi.URLParam(r, "attributeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[verifyAttributeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	attr, err := h.service.VerifyAttribute(ctx, service.VerifyAttributeCommand{
		AttributeID: attributeID,
		Status:      identitymodels.VerificationStatus(req.Status),
		Source:      req.Source,
		Notes:       req.Notes,
		Evidence:    req.Evidence,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "attribute verification failed",
			"request_id", requestID,
			"attribute_id", attributeID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attr)
}

// HandleGetVerificationTrail handles GET /attributes/{attributeID}/verification-trail.
func (h *Handler) HandleGetVerificationTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	attributeID, err := id.ParseAttributeID(chi.URLParam(r, "attributeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.GetVerificationTrail(ctx, attributeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

type updateLevelRequest struct {
	Level  string `json:"verification_level"`
	Reason string `json:"reason,omitempty"`
	Source string `json:"verification_source,omitempty"`
}

// HandleUpdateVerificationLevel handles PUT /contexts/{contextID}/verification-level.
func (h *Handler) HandleUpdateVerificationLevel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[updateLevelRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ic, err := h.service.UpdateVerificationLevel(ctx, contextID, identitymodels.VerificationLevel(req.Level), req.Reason, req.Source)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification level update failed",
			"request_id", requestID,
			"context_id", contextID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ic)
}

type updateTrustScoreRequest struct {
	Score  float64 `json:"trust_score"`
	Reason string  `json:"reason,omitempty"`
	Source string  `json:"source,omitempty"`
}

// HandleUpdateTrustScore handles PUT /contexts/{contextID}/trust-score.
func (h *Handler) HandleUpdateTrustScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[updateTrustScoreRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ic, err := h.service.UpdateTrustScore(ctx, contextID, req.Score, req.Reason, req.Source)
	if err != nil {
		h.logger.ErrorContext(ctx, "trust score update failed",
			"request_id", requestID,
			"context_id", contextID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ic)
}

type verifyIdentityRequest struct {
	Level string `json:"verification_level"`
}

// HandleVerifyIdentity handles POST /contexts/{contextID}/verify-identity.
func (h *Handler) HandleVerifyIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[verifyIdentityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ic, err := h.service.VerifyIdentity(ctx, contextID, identitymodels.VerificationLevel(req.Level))
	if err != nil {
		h.logger.ErrorContext(ctx, "identity verification failed",
			"request_id", requestID,
			"context_id", contextID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ic)
}
