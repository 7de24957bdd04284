package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Sessions
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions/{language}/connect", h.ConnectSession)
		r.Post("/sessions/{language}/disconnect", h.DisconnectSession)
		r.Post("/sessions/{language}/reconnect", h.ReconnectSession)

		// Documents
		r.Post("/documents/open", h.OpenDocument)
		r.Post("/documents/change", h.ChangeDocument)
		r.Post("/documents/close", h.CloseDocument)
		r.Post("/documents/save", h.SaveDocument)
		r.Get("/documents/markers", h.GetMarkers)

		// Language features
		r.Post("/features/{language}/hover", h.Hover)
		r.Post("/features/{language}/completion", h.Complete)
		r.Post("/features/{language}/definition", h.Definition)
		r.Post("/features/{language}/references", h.References)
		r.Post("/features/{language}/signature", h.SignatureHints)
		r.Post("/features/{language}/actions", h.Actions)
		r.Post("/features/{language}/execute", h.Execute)
		r.Post("/features/{language}/outline", h.Outline)
	})
}
