package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"spacewh/mis/internal/api"
	"spacewh/mis/internal/common"
	"spacewh/mis/internal/gateway"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/middleware"
)

const limiterIdleExpiry = 10 * time.Minute

// Options carries the HTTP-facing settings of the router.
type Options struct {
	AdminUsername     string
	AdminPassword     string
	AllowedOrigins    []string
	RequestsPerMinute int
	RateLimitBurst    int
}

func RegisterRoutes(deps *api.Dependencies, gw *gateway.Gateway, opts Options) http.Handler {

	// initialize Chi router
	r := chi.NewRouter()

	// global middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.MetricsMiddleware(deps.Metrics))
	r.Use(middleware.SecurityHeaders)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	logging.Info("Router initialized with metrics and logging middleware")

	// probes stay outside the rate limiter
	r.Get("/health", api.HealthCheckHandler(deps.Store, deps.StartedAt))
	r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))

	limiters := common.NewLimiterCache(
		rate.Limit(float64(opts.RequestsPerMinute)/60),
		opts.RateLimitBurst,
		limiterIdleExpiry,
		limiterIdleExpiry,
	)

	r.Group(func(limited chi.Router) {
		limited.Use(middleware.RateLimitMiddleware(limiters))
		RegisterAPIRoutes(limited, deps, opts)

		limited.Group(func(ws chi.Router) {
			ws.Use(middleware.InFlightMiddleware(deps.Metrics, "ws"))
			ws.Handle("/ws", gw.Handler())
		})
	})

	return r
}
