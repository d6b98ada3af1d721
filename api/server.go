/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for a frontend

SECURITY NOTE:
  No authentication middleware. The service trusts the X-Actor-ID
  header and is meant to sit behind a gateway that sets it.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/balances", h.GetBalances)
			r.Get("/{id}/history", h.GetHistory)
			r.Get("/{id}/leaves", h.ListUserLeaves)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.ApplyLeave)
			r.Get("/pending", h.ListPendingLeaves)
			r.Get("/{id}", h.GetLeave)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Post("/{id}/reject", h.RejectLeave)
			r.Post("/{id}/cancel", h.CancelLeave)
			r.Post("/{id}/request-cancellation", h.RequestLeaveCancellation)
			r.Get("/{id}/audit", h.GetLeaveAudit)
		})

		r.Route("/comp-off", func(r chi.Router) {
			r.Post("/", h.ClaimCompOff)
			r.Get("/pending", h.ListPendingClaims)
			r.Post("/{id}/approve", h.ApproveClaim)
			r.Post("/{id}/reject", h.RejectClaim)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.CreateAdjustment)
			r.Route("/jobs", func(r chi.Router) {
				r.Post("/accrual", h.TriggerAccrual)
				r.Post("/reset", h.TriggerReset)
				r.Get("/status", h.JobStatus)
			})
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.GetPolicy)
			r.Put("/", h.SavePolicy)
		})
	})

	return r
}
