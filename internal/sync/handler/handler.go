// Package handler wires synchronization and approval endpoints to the sync
// service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crosslink/internal/sync/models"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/platform/httputil"
	"crosslink/pkg/requestcontext"
)

// Service defines the sync operations exposed over HTTP.
type Service interface {
	Synchronize(ctx context.Context, integrationID id.IntegrationID, initiatedBy id.UserID) (*models.Operation, error)
	ApproveSync(ctx context.Context, syncID id.SyncID, approvedKeys []string, approvedBy id.UserID) (*models.Operation, error)
	GetOperation(ctx context.Context, syncID id.SyncID) (*models.Operation, error)
	ListOperations(ctx context.Context, integrationID id.IntegrationID) ([]*models.Operation, error)
}

// Handler wires sync endpoints to the sync service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a sync handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts sync endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/integrations/{integrationID}/sync", h.HandleSynchronize)
	r.Get("/integrations/{integrationID}/sync-operations", h.HandleListOperations)
	r.Get("/sync-operations/{syncID}", h.HandleGetOperation)
	r.Post("/sync-operations/{syncID}/approve", h.HandleApproveSync)
}

// HandleSynchronize handles POST /integrations/{integrationID}/sync requests.
func (h *Handler) HandleSynchronize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "integrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	op, err := h.service.Synchronize(ctx, integrationID, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "synchronization failed",
			"request_id", requestID,
			"integration_id", integrationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "synchronization finished",
		"request_id", requestID,
		"integration_id", integrationID,
		"sync_id", op.ID,
		"status", op.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, op)
}

type approveSyncRequest struct {
	ApprovedKeys []string `json:"approved_keys"`
}

// HandleApproveSync handles POST /sync-operations/{syncID}/approve requests.
func (h *Handler) HandleApproveSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	syncID, err := id.ParseSyncID(chi.URLParam(r, "syncID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[approveSyncRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	op, err := h.service.ApproveSync(ctx, syncID, req.ApprovedKeys, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "sync approval failed",
			"request_id", requestID,
			"sync_id", syncID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, op)
}

// HandleGetOperation handles GET /sync-operations/{syncID}.
func (h *Handler) HandleGetOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	syncID, err := id.ParseSyncID(chi.URLParam(r, "syncID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	op, err := h.service.GetOperation(ctx, syncID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, op)
}

// HandleListOperations handles GET /integrations/{integrationID}/sync-operations.
func (h *Handler) HandleListOperations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "integrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ops, err := h.service.ListOperations(ctx, integrationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"operations": ops})
}
