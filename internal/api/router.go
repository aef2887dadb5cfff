/**
 * @description
 * This file sets up the HTTP router for the reconciliation-service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies the authentication middleware for the admin and internal surfaces.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ReconciliationRoutes creates and returns a new router for the
// reconciliation service.
func ReconciliationRoutes(h *ReconciliationHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	// Sync runs paginate the full external listing, so the timeout is
	// generous compared to a typical CRUD service.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Admin-facing endpoints require a verified admin JWT.
	r.Group(func(r chi.Router) {
		r.Use(AdminAuthMiddleware(jwksURL))

		r.Post("/sync/{category}", h.TriggerSyncHandler)
		r.Post("/contacts/{id}/resync", h.ResyncContactHandler)
		r.Get("/runs", h.ListSyncRunsHandler)
	})

	// Service-to-service endpoints (the nightly scheduler) use the shared
	// internal key instead of a user token.
	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		r.Post("/internal/sync/{category}", h.InternalTriggerSyncHandler)
	})

	return r
}
