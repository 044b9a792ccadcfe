// Package api serves the scene over HTTP: JSON snapshots for polling
// clients, the WebSocket stream, health and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/scene"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultRateLimit = 20
	DefaultBurst     = 40
)

// Config holds the HTTP surface knobs.
type Config struct {
	// AllowedOrigins lists CORS origins; "*" or an empty list allows all.
	AllowedOrigins []string
	// RateLimit is requests per second per client address on /api routes.
	// Negative disables limiting.
	RateLimit float64
	Burst     int
}

// Deps are the collaborators the router serves from.
type Deps struct {
	Scene *scene.Manager
	// Stream serves /ws when set.
	Stream http.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// HTTPMetrics observes every request when set.
	HTTPMetrics HTTPMetrics
	Log         logging.Logger
}

// NewRouter builds the gin engine for the service.
func NewRouter(cfg Config, deps Deps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = logging.Noop()
	}

	r := gin.New()
	r.Use(
		Recovery(log),
		RequestLogger(log),
		Metrics(deps.HTTPMetrics),
		cors.New(corsConfig(cfg.AllowedOrigins)),
	)

	h := &handlers{scene: deps.Scene}

	r.GET("/healthz", h.health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.Stream != nil {
		r.GET("/ws", gin.WrapH(deps.Stream))
	}

	api := r.Group("/api")
	api.Use(RateLimit(limiterFor(cfg)))
	{
		api.GET("/scene", h.getScene)
		api.GET("/state", h.getState)
		api.GET("/planets", h.getPlanets)
		api.GET("/planets/:name", h.getPlanetByName)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	all := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			all = true
		}
	}
	if all {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func limiterFor(cfg Config) *IPRateLimiter {
	if cfg.RateLimit < 0 {
		return nil
	}
	limit, burst := cfg.RateLimit, cfg.Burst
	if limit == 0 {
		limit = DefaultRateLimit
	}
	if burst == 0 {
		burst = DefaultBurst
	}
	return NewIPRateLimiter(rate.Limit(limit), burst)
}
