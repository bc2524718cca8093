package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lexicon/internal/termservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *termservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/terms", func(r chi.Router) {
		r.Get("/", h.ListTerms)
		r.Post("/", h.CreateTerm)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.GetTerm)
			r.Put("/", h.UpdateTerm)
			r.Delete("/", h.DeleteTerm)
			r.Get("/html", h.GetTermHTML)

			r.Post("/links", h.LinkTerms)
			r.Delete("/links", h.UnlinkTerms)

			r.Post("/files", h.LinkFile)
			r.Get("/files/{file}", ah.ServeFile)
			r.Delete("/files/{file}", h.UnlinkFile)
			r.Post("/attachments", ah.Upload)

			r.Post("/undo", h.Undo)
			r.Post("/redo", h.Redo)
		})
	})

	r.Get("/search", h.Search)

	r.Get("/project", h.GetProject)
	r.Post("/project/save", h.SaveProject)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
