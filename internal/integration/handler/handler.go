// Package handler wires integration and mapping endpoints to the integration
// service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crosslink/internal/integration/models"
	"crosslink/internal/integration/service"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/httputil"
	"crosslink/pkg/requestcontext"
)

// Service defines the integration operations exposed over HTTP.
type Service interface {
	CreateIntegration(ctx context.Context, cmd service.CreateIntegrationCommand) (*models.Integration, error)
	UpdateIntegration(ctx context.Context, cmd service.UpdateIntegrationCommand) (*models.Integration, error)
	RemoveIntegration(ctx context.Context, integrationID id.IntegrationID) error
	GetIntegration(ctx context.Context, integrationID id.IntegrationID) (*models.Integration, error)
	CreateAttributeMapping(ctx context.Context, cmd service.CreateMappingCommand) (*models.AttributeMapping, error)
	RemoveAttributeMapping(ctx context.Context, integrationID id.IntegrationID, mappingID id.MappingID) error
}

// Handler wires integration endpoints to the integration service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an integration handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts integration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/integrations", h.HandleCreateIntegration)
	r.Get("/integrations/{integrationID}", h.HandleGetIntegration)
	r.Patch("/integrations/{integrationID}", h.HandleUpdateIntegration)
	r.Delete("/integrations/{integrationID}", h.HandleRemoveIntegration)
	r.Post("/integrations/{integrationID}/mappings", h.HandleCreateMapping)
	r.Delete("/integrations/{integrationID}/mappings/{mappingID}", h.HandleRemoveMapping)
}

type createIntegrationRequest struct {
	SourceContextID string `json:"source_context_id"`
	TargetContextID string `json:"target_context_id"`
	IntegrationType string `json:"integration_type"`
	SyncDirection   string `json:"sync_direction"`
	SyncMode        string `json:"sync_mode"`
}

// HandleCreateIntegration handles POST /integrations requests.
func (h *Handler) HandleCreateIntegration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[createIntegrationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	source, err := id.ParseContextID(req.SourceContextID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := id.ParseContextID(req.TargetContextID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	integration, err := h.service.CreateIntegration(ctx, service.CreateIntegrationCommand{
		SourceContextID: source,
		TargetContextID: target,
		IntegrationType: req.IntegrationType,
		SyncDirection:   models.SyncDirection(req.SyncDirection),
		SyncMode:        models.SyncMode(req.SyncMode),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "create integration failed",
			"request_id", requestID,
			"source_context_id", req.SourceContextID,
			"target_context_id", req.TargetContextID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, integration)
}

// HandleGetIntegration handles GET /integrations/{integrationID}.
func (h *Handler) HandleGetIntegration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "integrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	integration, err := h.service.GetIntegration(ctx, integrationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, integration)
}

type updateIntegrationRequest struct {
	SyncDirection *string `json:"sync_direction,omitempty"`
	SyncMode      *string `json:"sync_mode,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

// HandleUpdateIntegration handles PATCH /integrations/{integrationID}.
func (h *Handler) HandleUpdateIntegration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "integrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[updateIntegrationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cmd := service.UpdateIntegrationCommand{IntegrationID: integrationID, IsActive: req.IsActive}
	if req.SyncDirection != nil {
		direction := models.SyncDirection(*req.SyncDirection)
		cmd.SyncDirection = &direction
	}
	if req.SyncMode != nil {
		mode := models.SyncMode(*req.SyncMode)
		cmd.SyncMode = &mode
	}

	integration, err := h.service.UpdateIntegration(ctx, cmd)
	if err != nil {
		h.logger.ErrorContext(ctx, "update integration failed",
			"request_id", requestID,
			"integration_id", integrationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, integration)
}

// HandleRemoveIntegration handles DELETE /integrations/{integrationID}.
func (h *Handler) HandleRemoveIntegration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "integrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveIntegration(ctx, integrationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createMappingRequest struct {
	SourceContextID    string `json:"source_context_id"`
	TargetContextID    string `json:"target_context_id"`
	SourceAttributeKey string `json:"source_attribute_key"`
	TargetAttributeKey string `json:"target_attribute_key"`
	MappingType        string `json:"mapping_type"`
	TransformationRule string `json:"transformation_rule,omitempty"`
}

// HandleCreateMapping handles POST /integrations/{integrationID}/mappings.
func (h *Handler) HandleCreateMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "integrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[createMappingRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	source, err := id.ParseContextID(req.SourceContextID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := id.ParseContextID(req.TargetContextID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	mapping, err := h.service.CreateAttributeMapping(ctx, service.CreateMappingCommand{
		IntegrationID:      integrationID,
		SourceContextID:    source,
		TargetContextID:    target,
		SourceAttributeKey: req.SourceAttributeKey,
		TargetAttributeKey: req.TargetAttributeKey,
		MappingType:        models.MappingType(req.MappingType),
		TransformationRule: req.TransformationRule,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "create mapping failed",
			"request_id", requestID,
			"integration_id", integrationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, mapping)
}

// HandleRemoveMapping handles DELETE /integrations/{integrationID}/mappings/{mappingID}.
func (h *Handler) HandleRemoveMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "integrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	mappingID, err := id.ParseMappingID(chi.URLParam(r, "mappingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveAttributeMapping(ctx, integrationID, mappingID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
