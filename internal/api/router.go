package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/starford/sidekick/internal/broker"
	"github.com/starford/sidekick/internal/engines"
)

// NewRouter creates a chi router with all bridge routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(b *broker.Broker, reg *engines.Registry, authEnabled bool, token string) chi.Router {
	h := NewHandler(b, reg)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Session streams and query dispatch.
	r.Get("/sessions/{id}/events", h.Events)
	r.Post("/sessions/{id}/query", h.Query)

	// Tab lifecycle (badge computation).
	r.Post("/tabs/{id}/event", h.TabEvent)

	// Fire-and-forget control messages.
	r.Post("/messages", h.Control)

	// Provider detection.
	r.Post("/detect", h.Detect)

	return r
}
