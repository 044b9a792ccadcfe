package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/orrery/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func envMap(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestTracingConfigFromEnv(t *testing.T) {
	cfg, err := TracingConfigFromEnv(envMap(map[string]string{
		"ORRERY_TRACING_ENABLED":      "TRUE",
		"ORRERY_TRACING_EXPORTER":     "OTLP",
		"ORRERY_OTLP_ENDPOINT":        "collector:4317",
		"ORRERY_TRACING_SAMPLE_RATIO": "0.25",
	}))
	if err != nil {
		t.Fatalf("TracingConfigFromEnv: %v", err)
	}
	if !cfg.Enabled || cfg.Exporter != ExporterOTLP || cfg.Endpoint != "collector:4317" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SampleRatio != 0.25 || cfg.ServiceName != "orrery" {
		t.Fatalf("unexpected sampler/service: %+v", cfg)
	}

	cfg, err = TracingConfigFromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("empty env: %v", err)
	}
	if cfg.Enabled || cfg.Exporter != ExporterStdout || cfg.SampleRatio != 1 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestTracingConfigFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"ratio out of range": {"ORRERY_TRACING_SAMPLE_RATIO": "7"},
		"ratio not a number": {"ORRERY_TRACING_SAMPLE_RATIO": "half"},
		"enabled not a bool": {"ORRERY_TRACING_ENABLED": "sometimes"},
		"unknown exporter":   {"ORRERY_TRACING_EXPORTER": "carrier-pigeon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := TracingConfigFromEnv(envMap(env)); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartFetchSpan(context.Background(), "http://planets.test/all/")
	EndSpan(span, errors.New("boom"))
	_, span = StartLoadSpan(context.Background())
	EndSpan(span, nil)

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(ended))
	}
	fetch, load := ended[0], ended[1]
	if fetch.Name() != SpanFetch || fetch.SpanKind() != trace.SpanKindClient || fetch.Status().Code != codes.Error {
		t.Fatalf("fetch span = %s kind %v status %v", fetch.Name(), fetch.SpanKind(), fetch.Status())
	}
	found := false
	for _, kv := range fetch.Attributes() {
		if kv.Key == AttrEndpoint && kv.Value.AsString() == "http://planets.test/all/" {
			found = true
		}
	}
	if !found {
		t.Fatalf("fetch span missing endpoint: %v", fetch.Attributes())
	}
	if load.Name() != SpanLoad || load.Status().Code == codes.Error {
		t.Fatalf("load span = %s status %v", load.Name(), load.Status())
	}
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	_, span := StartSpan(context.Background(), "test", trace.SpanKindInternal)
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Fatalf("noop provider produced a sampled span")
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestShutdownWithTimeoutSwallowsErrors(t *testing.T) {
	called := false
	ShutdownWithTimeout(context.Background(), func(context.Context) error {
		called = true
		return errors.New("flush failed")
	}, nil)
	if !called {
		t.Fatalf("shutdown func was not invoked")
	}
	ShutdownWithTimeout(context.Background(), nil, nil)
}
