package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"arena/internal/matchmaking"
	"arena/internal/registry"
)

// RouterConfig carries the router's dependencies. Constructed routers are
// pure: no goroutines, no listeners, safe under httptest.
type RouterConfig struct {
	Registry   *registry.Registry
	Matchmaker *matchmaking.Matchmaker

	// Gateway is optional; without it the /ws route is absent.
	Gateway *Gateway

	// RateLimiter overrides the default limiter when set.
	RateLimiter *IPRateLimiter

	// CORSOrigins overrides the default allowed origins.
	CORSOrigins []string

	// DisableLogging turns off the request logger, for tests.
	DisableLogging bool
}

// NewRouter builds the HTTP surface: health, the match and queue read
// API, the replay endpoints and the WebSocket upgrade.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// rate limit before CORS so floods are cut early
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = NewIPRateLimiter(DefaultRateLimitConfig)
	}
	r.Use(limiter.Middleware)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &handlers{
		registry:   cfg.Registry,
		matchmaker: cfg.Matchmaker,
	}

	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/matches", h.handleListMatches)
		r.Get("/matches/{id}", h.handleGetMatch)
		r.Get("/matches/{id}/replay", h.handleReplay)
		r.Get("/matches/{id}/preview.png", h.handlePreview)
		r.Get("/queue/{player}", h.handleQueueStatus)
	})

	if cfg.Gateway != nil {
		r.Get("/ws", cfg.Gateway.HandleWS)
	}

	return r
}
