package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/embed.js", h.EmbedScriptHandler)

	r.Route("/api", func(r chi.Router) {
		// Widget routes
		r.Get("/health", h.HealthHandler)
		r.Post("/chat", h.AskHandler)
		r.Post("/feedback", h.SubmitFeedbackHandler)
		r.Get("/feedback", h.GetFeedbackHandler)
		r.Get("/embed/documents", h.EmbedDocumentsHandler)

		// Admin routes, scoped to the token's organization
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.AdminAuth)

			r.Get("/connections", h.ListConnectionsHandler)
			r.Post("/connections", h.CreateConnectionHandler)
			r.Route("/connections/{connectionID}", func(r chi.Router) {
				r.Get("/", h.GetConnectionHandler)
				r.Put("/", h.UpdateConnectionHandler)
				r.Delete("/", h.DeleteConnectionHandler)
				r.Put("/behavior", h.UpsertConnectionBehaviorHandler)
				r.Put("/documents", h.SelectConnectionDocumentsHandler)
			})

			r.Get("/behavior", h.GetOrganizationBehaviorHandler)
			r.Post("/behavior", h.CreateOrganizationBehaviorHandler)
			r.Put("/behavior", h.UpdateOrganizationBehaviorHandler)

			r.Get("/chunks", h.ListChunksHandler)
			r.Post("/chunks", h.AddChunkHandler)
			r.Delete("/chunks/{chunkID}", h.DeleteChunkHandler)

			r.Get("/chat-history", h.ChatHistoryHandler)
			r.Get("/feedback", h.ListFeedbackHandler)
			r.Get("/activity-logs", h.ActivityLogsHandler)
		})
	})

	return r
}
