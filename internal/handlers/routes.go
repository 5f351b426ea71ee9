package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the kiosk HTTP API. allowedOrigins feeds the CORS policy
// for the browser renderer.
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})

	r.Route("/api/sessions", func(r chi.Router) {
		if h.Debug {
			r.Get("/", h.HandleListSessions)
		}
		r.Post("/", h.HandleCreateSession)

		r.Route("/{sessionID}", h.Attach)
	})

	return r
}

// Attach registers the per-session routes
func (h *Handler) Attach(r chi.Router) {
	r.Get("/", h.HandleGetSession)
	r.Delete("/", h.HandleDeleteSession)

	r.Get("/collections", h.HandleCollections)
	r.Put("/collection", h.HandleSelectCollection)

	r.Post("/capture", h.HandleCapture)
	r.Delete("/capture", h.HandleDiscardCapture)
	r.Get("/capture/thumbnail", h.HandleThumbnail)

	r.Post("/search", h.HandleSearch)
	r.Post("/selection/toggle", h.HandleToggle)
	r.Post("/payment", h.HandlePayment)
	r.Post("/new-search", h.HandleNewSearch)
	r.Post("/screen", h.HandleScreen)

	r.Post("/download", h.HandleDownload)
	r.Post("/email", h.HandleEmail)
	r.Get("/print", h.HandlePrint)
}
