package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the auth and CORS settings from config.Load.
type RouterConfig struct {
	BackendAPIKey      string // empty disables auth on /v1
	CorsAllowedOrigins string // comma-separated; empty allows any origin
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Content-Disposition"}, // archive filename for browser downloads
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check: public, no auth required
	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		r.Post("/sessions", h.CreateSession)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)

			// Uploads
			r.Post("/clips", h.UploadClip)

			// Product selection
			r.Post("/selection/select", h.SelectProduct)
			r.Post("/selection/deselect", h.DeselectProduct)
			r.Put("/selection/order", h.ReorderSelection)

			// Variations and render batches
			r.Get("/variations", h.ListVariations)
			r.Post("/batches", h.CreateBatch)
			r.Get("/batches/{batchId}", h.GetBatch)
			r.Get("/batches/{batchId}/download", h.DownloadBatch)
		})
	})

	return r
}

func allowedOrigins(csv string) []string {
	origins := strings.FieldsFunc(csv, func(r rune) bool { return r == ',' || r == ' ' })
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
