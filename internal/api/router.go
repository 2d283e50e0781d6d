/**
 * @description
 * This file sets up the HTTP router for the billing service using the
 * go-chi/chi router. The only public route is the health check; everything
 * else sits behind the admin token middleware.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the billing routes.
func NewRouter(h *Handler, adminJWTSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Billing service is healthy"))
	})

	// Administrative routes
	r.Group(func(r chi.Router) {
		r.Use(AdminAuthMiddleware(adminJWTSecret))

		r.Post("/billing/check", h.handleBillingCheck)
		r.Post("/payments/record", h.handleRecordPayment)
		r.Get("/tenants/{tenantID}/payments/current", h.handleCurrentCycle)
		r.Post("/plans", h.handleCreatePlan)
		r.Get("/plans", h.handleListPlans)
	})

	return r
}
