/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Wires URLs to handlers. chi for routing, the standard chi middleware
  stack plus per-IP rate limiting, CORS for any browser-based dashboard
  the transport grows.

ROUTE GROUPS:
  /api/offers         offer creation and withdrawal
  /api/claims         resident/guest claims, cancellation
  /api/staff/claims   staff pool claims
  /api/reclaims       owner eviction of the current occupant
  /api/status         availability summary
  /api/users          per-user activity

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/parkingd: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tune the middleware stack.
type RouterOptions struct {
	AllowedOrigins  []string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewRouter creates the router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RateLimit(opts.RateLimitPerSec, opts.RateLimitBurst))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/offers", func(r chi.Router) {
			r.Post("/", h.CreateOffer)
			r.Post("/withdraw", h.WithdrawOffer)
		})

		r.Route("/claims", func(r chi.Router) {
			r.Post("/", h.CreateClaim)
			r.Post("/cancel", h.CancelBySelector)
			r.Delete("/{id}", h.CancelClaim)
		})

		r.Route("/staff/claims", func(r chi.Router) {
			r.Post("/", h.CreateStaffClaim)
			r.Delete("/", h.ReleaseStaff)
		})

		r.Post("/reclaims", h.Reclaim)
		r.Get("/status", h.GetStatus)
		r.Get("/users/{id}/activity", h.GetUserActivity)
	})

	return r
}
