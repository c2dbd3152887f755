package api

import (
	"net/http"
	"strings"

	"github.com/bobarin/gigi/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// The websocket feed also takes it from the api_key query parameter.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logging.Component("http")))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	auth, wsAuth := passthrough, passthrough
	if cfg.BackendAPIKey != "" {
		auth = APIKeyAuth(cfg.BackendAPIKey)
		wsAuth = WebsocketKeyAuth(cfg.BackendAPIKey)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Get("/brands", h.ListBrands)
			r.Get("/jobs/{id}", h.GetJob)
			r.Post("/sessions", h.CreateSession)
		})

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.With(wsAuth).Get("/events", h.Events)

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Get("/", h.GetSession)
				r.Post("/back", h.Back)
				r.Post("/advance", h.Advance)

				// Step 1
				r.Put("/brand", h.SelectBrand)
				r.Post("/scenario", h.GenerateScenario)
				r.Post("/scenario/confirm", h.ConfirmScenario)

				// Step 2
				r.Post("/timeline", h.GenerateTimeline)
				r.Patch("/scenes/{index}", h.UpdateScene)
				r.Post("/scenes/{index}/copy-style", h.CopyPreviousStyle)
				r.Post("/scenes/{index}/image", h.ComposeImage)
				r.Put("/voice", h.ApplyVoice)
				r.Post("/storyboard/finalize", h.FinalizeStoryboard)

				// Step 3
				r.Post("/videos/generate-all", h.GenerateAllVideos)
				r.Post("/videos/{index}/generate", h.GenerateVideo)

				// Step 4
				r.Post("/merge", h.Merge)
			})
		})
	})

	return r
}

// passthrough is used in place of auth in development mode.
func passthrough(next http.Handler) http.Handler {
	return next
}

// allowedOrigins restricts CORS when configured, otherwise allows all (dev mode).
func allowedOrigins(csv string) []string {
	origins := []string{"*"}
	if csv == "" {
		return origins
	}
	trimmed := make([]string, 0)
	for _, o := range strings.Split(csv, ",") {
		if s := strings.TrimSpace(o); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) > 0 {
		origins = trimmed
	}
	return origins
}
