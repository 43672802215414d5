// Package httptransport assembles the HTTP surface: middleware chain, health
// and metrics endpoints, and the per-module route groups.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	identityhandler "crosslink/internal/identity/handler"
	integrationhandler "crosslink/internal/integration/handler"
	"crosslink/internal/platform/middleware"
	synchandler "crosslink/internal/sync/handler"
	trusthandler "crosslink/internal/trust/handler"
)

// Handlers groups the per-module HTTP handlers mounted on the router.
type Handlers struct {
	Identity    *identityhandler.Handler
	Integration *integrationhandler.Handler
	Sync        *synchandler.Handler
	Trust       *trusthandler.Handler
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(r *http.Request) error

// NewRouter wires all endpoints. Everything except health and metrics sits
// behind authentication.
func NewRouter(handlers Handlers, validator middleware.TokenValidator, logger *slog.Logger, health HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req); err != nil {
				logger.ErrorContext(req.Context(), "health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))
		handlers.Identity.Register(r)
		handlers.Integration.Register(r)
		handlers.Sync.Register(r)
		handlers.Trust.Register(r)
	})
	return r
}
