package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/orrery/internal/api"
	"github.com/signalsfoundry/orrery/internal/appearance"
	"github.com/signalsfoundry/orrery/internal/discovery"
	"github.com/signalsfoundry/orrery/internal/events"
	"github.com/signalsfoundry/orrery/internal/health"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/internal/planetsource"
	"github.com/signalsfoundry/orrery/internal/scene"
	"github.com/signalsfoundry/orrery/internal/stream"
	"github.com/signalsfoundry/orrery/timectrl"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log := logging.NewFromEnv()

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		log.Error(context.Background(), "invalid configuration", logging.Err(err))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "orrery exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log logging.Logger) error {
	tracingCfg, err := observability.TracingConfigFromEnv(os.Getenv)
	if err != nil {
		return err
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	a, err := newApp(cfg, log, nil)
	if err != nil {
		return err
	}

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
		}
	}
	return a.serve(ctx, httpLis, grpcLis)
}

// app is the wired service: one scene, the clock that ticks it and the
// surfaces that expose it.
type app struct {
	cfg       Config
	log       logging.Logger
	collector *observability.Collector

	scene  *scene.Manager
	clock  *timectrl.TimeController
	source planetsource.Source
	hub    *stream.Hub
	router http.Handler
	health *health.Server

	emitter   *events.Emitter
	publisher *events.RedisPublisher
	registry  *discovery.Registry
}

func newApp(cfg Config, log logging.Logger, reg prometheus.Registerer) (*app, error) {
	if log == nil {
		log = logging.Noop()
	}

	collector, err := observability.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	tables := appearance.Defaults()
	if cfg.AppearancePath != "" {
		if tables, err = appearance.LoadFile(cfg.AppearancePath); err != nil {
			return nil, fmt.Errorf("load appearance: %w", err)
		}
		log.Info(context.Background(), "loaded appearance tables",
			logging.String("path", cfg.AppearancePath),
			logging.Int("speeds", tables.Speeds.Len()),
			logging.Int("colors", tables.Colors.Len()),
		)
	}

	a := &app{
		cfg:       cfg,
		log:       log,
		collector: collector,
		scene:     scene.NewManager(tables, scene.WithMetricsRecorder(collector)),
		source:    planetsource.NewClient(cfg.Endpoint, planetsource.WithTimeout(cfg.FetchTimeout)),
	}

	a.hub = stream.NewHub(a.scene,
		stream.WithLogger(log),
		stream.WithMetrics(collector),
		stream.WithBroadcastEvery(cfg.BroadcastEvery),
		stream.WithPingInterval(cfg.PingInterval),
		stream.WithAllowedOrigins(cfg.AllowedOrigins),
	)

	a.router = api.NewRouter(api.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		Burst:          cfg.Burst,
	}, api.Deps{
		Scene:       a.scene,
		Stream:      a.hub,
		Metrics:     collector.Handler(),
		HTTPMetrics: collector,
		Log:         log,
	})

	if cfg.GRPCAddr != "" {
		a.health = health.NewServer(log, collector.UnaryServerInterceptor())
	}

	if cfg.RedisAddr != "" {
		a.publisher = events.NewRedisPublisher(cfg.RedisAddr)
		a.emitter = events.NewEmitter(a.publisher, log, events.WithDigestEvery(uint64(cfg.FPS)))
	}

	if cfg.ConsulAddr != "" {
		if a.registry, err = discovery.NewRegistry(cfg.ConsulAddr, log); err != nil {
			return nil, err
		}
	}

	a.scene.OnTransition(func(p scene.Populated) {
		a.hub.Resync()
		if a.health != nil {
			a.health.SetServing()
		}
		a.emitter.Populated(context.Background(), p)
	})

	a.clock = timectrl.NewTimeController(time.Now().UTC(), timectrl.IntervalForFPS(cfg.FPS), timectrl.RealTime)
	a.clock.AddListener(func(uint64, time.Time) { a.step() })

	return a, nil
}

// step is the frame clock listener: the only place body state advances.
func (a *app) step() {
	start := time.Now()
	defer func() { a.collector.ObserveTick(time.Since(start)) }()

	tick := a.scene.Tick()
	a.hub.Broadcast(tick)
	if a.emitter != nil {
		a.emitter.Tick(context.Background(), a.scene.Snapshot())
	}
}

// load runs the single startup fetch. It never blocks ticking.
func (a *app) load(ctx context.Context) {
	if err := planetsource.LoadOnce(ctx, a.source, a.scene, a.log, a.collector); err != nil {
		a.emitter.FetchFailed(ctx, err)
	}
}

func (a *app) serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	httpSrv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.log.Info(ctx, "serving HTTP", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.health != nil && grpcLis != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.log.Info(ctx, "serving gRPC health", logging.String("addr", grpcLis.Addr().String()))
			if err := a.health.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if a.publisher != nil {
		if err := a.publisher.Ping(ctx); err != nil {
			a.log.Warn(ctx, "redis unreachable; events will be retried per publish", logging.Err(err))
		}
	}

	var registration discovery.Registration
	if a.registry != nil {
		var err error
		registration, err = discovery.RegistrationFor(discovery.DefaultServiceName, httpLis.Addr().String())
		if err == nil {
			err = a.registry.Register(ctx, registration)
		}
		if err != nil {
			a.log.Warn(ctx, "consul registration failed", logging.Err(err))
			a.registry = nil
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.registry.Heartbeat(ctx, registration)
			}()
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		a.clock.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.load(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	a.log.Info(context.Background(), "shutting down")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	if a.registry != nil {
		if err := a.registry.Deregister(shutdownCtx, registration); err != nil {
			a.log.Warn(shutdownCtx, "consul deregistration failed", logging.Err(err))
		}
	}
	a.hub.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn(shutdownCtx, "http shutdown", logging.Err(err))
	}
	if a.health != nil {
		a.health.Stop()
	}
	wg.Wait()
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	return runErr
}
