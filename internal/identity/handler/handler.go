// Package handler wires identity-context endpoints to the identity service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crosslink/internal/identity/models"
	"crosslink/internal/identity/service"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/httputil"
	"crosslink/pkg/requestcontext"
)

// Service defines the identity operations exposed over HTTP.
type Service interface {
	CreateContext(ctx context.Context, cmd service.CreateContextCommand) (*models.IdentityContext, error)
	GetContext(ctx context.Context, contextID id.ContextID) (*models.IdentityContext, error)
	SetAttribute(ctx context.Context, cmd service.SetAttributeCommand) (*models.ContextAttribute, error)
	RemoveAttribute(ctx context.Context, contextID id.ContextID, key string) error
	ListAttributes(ctx context.Context, contextID id.ContextID) ([]*models.ContextAttribute, error)
	GetHistory(ctx context.Context, contextID id.ContextID) ([]*models.HistoryEntry, error)
}

// Handler wires identity-context endpoints to the identity service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an identity handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts identity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/contexts", h.HandleCreateContext)
	r.Get("/contexts/{contextID}", h.HandleGetContext)
	r.Get("/contexts/{contextID}/attributes", h.HandleListAttributes)
	r.Put("/contexts/{contextID}/attributes/{key}", h.HandleSetAttribute)
	r.Delete("/contexts/{contextID}/attributes/{key}", h.HandleRemoveAttribute)
	r.Get("/contexts/{contextID}/history", h.HandleGetHistory)
}

type createContextRequest struct {
	IdentityID  string `json:"identity_id"`
	ContextType string `json:"context_type"`
}

// HandleCreateContext handles POST /contexts requests.
func (h *Handler) HandleCreateContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[createContextRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	identityID, err := id.ParseIdentityID(req.IdentityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ic, err := h.service.CreateContext(ctx, service.CreateContextCommand{
		IdentityID:  identityID,
		ContextType: req.ContextType,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "create context failed",
			"request_id", requestID,
			"context_type", req.ContextType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ic)
}

// HandleGetContext handles GET /contexts/{contextID} requests.
func (h *Handler) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ic, err := h.service.GetContext(ctx, contextID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ic)
}

type setAttributeRequest struct {
	Value       string            `json:"value"`
	Sensitivity string            `json:"sensitivity_level"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HandleSetAttribute handles PUT /contexts/{contextID}/attributes/{key}.
func (h *Handler) HandleSetAttribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[setAttributeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	attr, err := h.service.SetAttribute(ctx, service.SetAttributeCommand{
		ContextID:   contextID,
		Key:         chi.URLParam(r, "key"),
		Value:       req.Value,
		Sensitivity: models.SensitivityLevel(req.Sensitivity),
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "set attribute failed",
			"request_id", requestID,
			"context_id", contextID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attr)
}

// HandleRemoveAttribute handles DELETE /contexts/{contextID}/attributes/{key}.
func (h *Handler) HandleRemoveAttribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveAttribute(ctx, contextID, chi.URLParam(r, "key")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListAttributes handles GET /contexts/{contextID}/attributes.
func (h *Handler) HandleListAttributes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	attrs, err := h.service.ListAttributes(ctx, contextID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"attributes": attrs})
}

// HandleGetHistory handles GET /contexts/{contextID}/history.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.GetHistory(ctx, contextID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": entries})
}
