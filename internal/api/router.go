/**
 * @description
 * HTTP router for the listing lifecycle engine, built on go-chi. Routes map
 * one-to-one onto the service's mutation and query API, plus the scheduler
 * hook and the Prometheus endpoint.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/adverto/listing-service/internal/app"
)

// NewRouter creates the Chi router and registers all routes.
func NewRouter(h *Handler, metricsHandler http.Handler, limiter *app.RedisRateLimiter, internalAPIKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Listing service is healthy"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/listings", func(r chi.Router) {
		r.Get("/", h.handleSearchListings)
		r.Post("/", h.handleCreateListing)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetListing)
			r.Put("/", h.handleUpdateListing)
			r.Delete("/", h.handleDeleteListing)

			r.Post("/views", h.handleIncrementViews)
			r.Post("/effects", h.handleApplyEffects)

			// Paid mutations share a tighter per-user limit.
			r.Group(func(r chi.Router) {
				r.Use(RateLimitMiddleware(limiter, "paid_mutation", 30, time.Minute))
				r.Post("/views/purchase", h.handlePurchaseViews)
				r.Post("/promote", h.handlePromoteListing)
				r.Post("/auto-renewal/enable", h.handleEnableAutoRenewal)
				r.Post("/auto-renewal/disable", h.handleDisableAutoRenewal)
				r.Post("/renew", h.handleRenewListing)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))
		r.Post("/internal/reconciler/run", h.handleRunSweep)
	})

	return r
}
