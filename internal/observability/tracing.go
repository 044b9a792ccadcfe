package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/orrery/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName is the instrumentation scope for spans started by this service.
const TracerName = "github.com/signalsfoundry/orrery"

// Span names for the scene lifecycle.
const (
	SpanLoad  = "orrery.scene.load"
	SpanFetch = "orrery.planetsource.fetch"
)

// Attribute keys carried on lifecycle spans.
const (
	AttrEndpoint   = attribute.Key("orrery.planetsource.endpoint")
	AttrStatusCode = attribute.Key("http.status_code")
	AttrPlanets    = attribute.Key("orrery.planets")
	AttrPhase      = attribute.Key("orrery.phase")
)

// Exporter names accepted by ORRERY_TRACING_EXPORTER.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string
	// Endpoint is the collector address when Exporter is otlp.
	Endpoint    string
	SampleRatio float64
}

// TracingConfigFromEnv reads ORRERY_TRACING_* and ORRERY_OTLP_ENDPOINT.
// Malformed values are errors rather than silent fallbacks.
func TracingConfigFromEnv(getenv func(string) string) (TracingConfig, error) {
	cfg := TracingConfig{
		ServiceName: "orrery",
		Exporter:    ExporterStdout,
		Endpoint:    strings.TrimSpace(getenv("ORRERY_OTLP_ENDPOINT")),
		SampleRatio: 1,
	}

	if raw := strings.TrimSpace(getenv("ORRERY_TRACING_ENABLED")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("ORRERY_TRACING_ENABLED: %w", err)
		}
		cfg.Enabled = enabled
	}
	if name := strings.TrimSpace(getenv("ORRERY_TRACING_SERVICE_NAME")); name != "" {
		cfg.ServiceName = name
	}
	switch exp := strings.ToLower(strings.TrimSpace(getenv("ORRERY_TRACING_EXPORTER"))); exp {
	case "":
	case ExporterStdout, ExporterOTLP:
		cfg.Exporter = exp
	case "otlpgrpc":
		cfg.Exporter = ExporterOTLP
	default:
		return TracingConfig{}, fmt.Errorf("ORRERY_TRACING_EXPORTER: unsupported exporter %q", exp)
	}
	if raw := strings.TrimSpace(getenv("ORRERY_TRACING_SAMPLE_RATIO")); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return TracingConfig{}, fmt.Errorf("ORRERY_TRACING_SAMPLE_RATIO: want a number in [0,1], got %q", raw)
		}
		cfg.SampleRatio = ratio
	}
	return cfg, nil
}

// InitTracing wires a tracer provider, exporter, propagators, and sampler based
// on the provided configuration. It returns a shutdown function to flush spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.namespace", "orrery"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.String("sampler", fmt.Sprintf("parentbased_traceidratio_%0.2f", cfg.SampleRatio)),
	)

	return tp.Shutdown, nil
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterStdout, "":
		return stdouttrace.New(
			stdouttrace.WithWriter(os.Stdout),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// StartSpan starts a span on the service tracer with optional attributes.
func StartSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartLoadSpan covers the startup fetch and the Loading to Populated
// transition that follows it.
func StartLoadSpan(ctx context.Context) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanLoad, trace.SpanKindInternal)
}

// StartFetchSpan starts the client span for one GET against the planet API.
// The returned context carries the span for header propagation.
func StartFetchSpan(ctx context.Context, endpoint string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanFetch, trace.SpanKindClient,
		attribute.String("http.method", "GET"),
		AttrEndpoint.String(endpoint),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ShutdownWithTimeout invokes the provided shutdown function with a bounded
// timeout, swallowing errors in the shutdown path.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
