package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/orrery/internal/api"
	"github.com/signalsfoundry/orrery/internal/planetsource"
	"github.com/signalsfoundry/orrery/internal/stream"
	"github.com/signalsfoundry/orrery/timectrl"
)

// Config is the process configuration. Environment variables provide the
// defaults; flags override them.
type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	Endpoint       string
	FPS            int
	BroadcastEvery uint64
	AppearancePath string
	AllowedOrigins []string
	RateLimit      float64
	Burst          int
	RedisAddr      string
	ConsulAddr     string
	FetchTimeout   time.Duration
	PingInterval   time.Duration
}

func parseConfig(args []string, getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	fps, err := strconv.Atoi(env("ORRERY_FPS", strconv.Itoa(timectrl.DefaultFPS)))
	if err != nil {
		return Config{}, fmt.Errorf("ORRERY_FPS: %w", err)
	}
	every, err := strconv.ParseUint(env("ORRERY_BROADCAST_EVERY", "1"), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("ORRERY_BROADCAST_EVERY: %w", err)
	}
	limit, err := strconv.ParseFloat(env("ORRERY_RATE_LIMIT", strconv.Itoa(api.DefaultRateLimit)), 64)
	if err != nil {
		return Config{}, fmt.Errorf("ORRERY_RATE_LIMIT: %w", err)
	}
	fetchTimeout, err := time.ParseDuration(env("ORRERY_FETCH_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("ORRERY_FETCH_TIMEOUT: %w", err)
	}

	ping, err := time.ParseDuration(env("ORRERY_PING_INTERVAL", stream.DefaultPingInterval.String()))
	if err != nil {
		return Config{}, fmt.Errorf("ORRERY_PING_INTERVAL: %w", err)
	}

	var cfg Config
	var origins string
	fs := flag.NewFlagSet("orrery", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", env("ORRERY_HTTP_ADDR", ":8080"), "HTTP address for the API, stream and /metrics")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", env("ORRERY_GRPC_ADDR", ":50051"), "gRPC health address; empty disables")
	fs.StringVar(&cfg.Endpoint, "endpoint", env("ORRERY_PLANETS_URL", planetsource.DefaultEndpoint), "URL of the planet data source")
	fs.IntVar(&cfg.FPS, "fps", fps, "animation ticks per second")
	fs.Uint64Var(&cfg.BroadcastEvery, "broadcast-every", every, "stream a frame every N ticks")
	fs.StringVar(&cfg.AppearancePath, "appearance", env("ORRERY_APPEARANCE", ""), "JSON file overriding speed and colour tables")
	fs.StringVar(&origins, "allowed-origins", env("ORRERY_ALLOWED_ORIGINS", "*"), "comma-separated CORS and WebSocket origins")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", limit, "API requests per second per client; negative disables")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", env("ORRERY_REDIS_ADDR", ""), "Redis address for lifecycle events; empty disables")
	fs.StringVar(&cfg.ConsulAddr, "consul-addr", env("ORRERY_CONSUL_ADDR", ""), "Consul agent address; empty disables")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", fetchTimeout, "timeout for the startup planet fetch")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", ping, "WebSocket keepalive ping interval")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.FPS <= 0 {
		return Config{}, fmt.Errorf("fps must be positive, got %d", cfg.FPS)
	}
	if cfg.PingInterval <= 0 {
		return Config{}, fmt.Errorf("ping interval must be positive, got %s", cfg.PingInterval)
	}
	if cfg.BroadcastEvery == 0 {
		cfg.BroadcastEvery = 1
	}
	cfg.Burst = 1
	if b := int(2 * cfg.RateLimit); b > 1 {
		cfg.Burst = b
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}
	return cfg, nil
}
