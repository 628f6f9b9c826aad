package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via token query parameter, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/audit", s.handleListAuditLogs)

			r.Route("/objects", func(r chi.Router) {
				r.Get("/", s.handleListObjects)
				r.Post("/", s.handleCreateObject)
				r.Post("/import", s.handleImportObject)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetObject)
					r.Delete("/", s.handleDeleteObject)
					r.Get("/document", s.handleGetDocument)
					r.Get("/properties", s.handleListProperties)
					r.Post("/update", s.handleUpdateObject)
					r.Post("/freeze", s.handleFreezeObject)

					r.Get("/values/{path}", s.handleGetValue)
					r.Put("/values/{path}", s.handleSetValue)
					r.Delete("/values/{path}", s.handleClearValue)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"objects":   s.registry.Count(),
		"ws_client": s.hub.ClientCount(),
	})
}
