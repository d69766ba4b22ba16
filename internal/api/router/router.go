package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/therapyflow/agent-surface/internal/http/handlers"
	httpmiddleware "github.com/therapyflow/agent-surface/internal/http/middleware"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	SurfaceHandler *handlers.SurfaceHandler
	FeedHandler    *handlers.FeedHandler
	MetricsHandler http.Handler

	AuthJWTSecret      string
	CORSAllowedOrigins []string

	// RateLimitPerSecond <= 0 disables the per-caller throttle on the
	// surface endpoints.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints. Health checks and metrics scrapes are machine
	// traffic and stay outside the throttle.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Surface endpoints, always behind the user token. The throttle runs
	// after auth so buckets key on the verified subject, not the address.
	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.UserJWT(cfg.AuthJWTSecret))
		if cfg.RateLimitPerSecond > 0 {
			authed.Use(httpmiddleware.Throttle(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}

		if cfg.SurfaceHandler != nil {
			authed.Get("/surfaces", cfg.SurfaceHandler.ListSurfaces)
			authed.Get("/surfaces/{surfaceID}", cfg.SurfaceHandler.GetSurface)
			authed.Post("/actions", cfg.SurfaceHandler.DispatchAction)
		}
		if cfg.FeedHandler != nil {
			authed.Get("/surfaces/{surfaceID}/feed", cfg.FeedHandler.Feed)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
