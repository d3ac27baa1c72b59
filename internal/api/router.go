package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ucdcanvas/internal/documents"
	"github.com/starford/ucdcanvas/internal/editor"
)

// RouterConfig carries the optional parts of the API.
type RouterConfig struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(sessions *editor.Manager, docs *documents.Store, cfg RouterConfig) chi.Router {
	h := NewHandler(sessions, docs)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	// Palette.
	r.Get("/templates", h.ListTemplates)
	r.Get("/templates/{type}/fields", h.TemplateFields)

	r.Route("/projects/{project}/stages/{stage}/documents", func(r chi.Router) {
		r.Get("/", h.ListDocuments)

		r.Route("/{document}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Put("/", h.PutDocument)
			r.Delete("/", h.DeleteDocument)

			r.Get("/save", h.SaveStatus)
			r.Post("/save", h.Save)

			r.Post("/nodes", h.AddNode)
			r.Get("/nodes/{node}/fields", h.NodeFields)
			r.Patch("/nodes/{node}/content", h.PatchNodeContent)
			r.Put("/nodes/{node}/position", h.MoveNode)
			r.Delete("/nodes/{node}", h.DeleteNode)

			r.Post("/edges", h.Connect)
			r.Delete("/edges/{edge}", h.Disconnect)

			r.Put("/viewport", h.SetViewport)
			r.Post("/viewport/zoom", h.Zoom)

			r.Get("/export.png", h.ExportPNG)
			r.Get("/ws", h.GestureSocket)
		})
	})

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
