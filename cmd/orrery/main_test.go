package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/orrery/internal/api"
	"github.com/signalsfoundry/orrery/internal/events"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/planetsource"
	"github.com/signalsfoundry/orrery/internal/stream"
)

func noEnv(string) string { return "" }

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil, noEnv)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":50051" || cfg.Endpoint != planetsource.DefaultEndpoint {
		t.Fatalf("addresses = %+v", cfg)
	}
	if cfg.FPS != 60 || cfg.BroadcastEvery != 1 || cfg.FetchTimeout != 30*time.Second {
		t.Fatalf("timing = %+v", cfg)
	}
	if cfg.PingInterval != 20*time.Second {
		t.Fatalf("ping interval = %s", cfg.PingInterval)
	}
	if cfg.RateLimit != 20 || cfg.Burst != 40 {
		t.Fatalf("rate limit = %v burst %d", cfg.RateLimit, cfg.Burst)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.RedisAddr != "" || cfg.ConsulAddr != "" || cfg.AppearancePath != "" {
		t.Fatalf("optional integrations should default off: %+v", cfg)
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	env := map[string]string{
		"ORRERY_HTTP_ADDR":       ":9999",
		"ORRERY_FPS":             "30",
		"ORRERY_ALLOWED_ORIGINS": "https://a.example, https://b.example",
		"ORRERY_REDIS_ADDR":      "redis:6379",
	}
	getenv := func(k string) string { return env[k] }

	cfg, err := parseConfig([]string{"-fps", "10", "-grpc-addr", ""}, getenv)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.FPS != 10 || cfg.GRPCAddr != "" || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "zero fps", args: []string{"-fps", "0"}},
		{name: "bad env fps", env: map[string]string{"ORRERY_FPS": "fast"}},
		{name: "bad timeout", env: map[string]string{"ORRERY_FETCH_TIMEOUT": "soon"}},
		{name: "unknown flag", args: []string{"-nope"}},
		{name: "zero ping interval", args: []string{"-ping-interval", "0s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			getenv := func(k string) string { return tc.env[k] }
			if _, err := parseConfig(tc.args, getenv); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		FPS:            200,
		BroadcastEvery: 1,
		AllowedOrigins: []string{"*"},
		RateLimit:      -1,
		FetchTimeout:   2 * time.Second,
		PingInterval:   time.Second,
	}
}

type runningApp struct {
	base string
	a    *app
	stop func() error
}

func startApp(t *testing.T, a *app) runningApp {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, lis, nil) }()

	return runningApp{
		base: "http://" + lis.Addr().String(),
		a:    a,
		stop: func() error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-time.After(5 * time.Second):
				t.Fatalf("serve did not return after cancel")
				return nil
			}
		},
	}
}

func getState(t *testing.T, base string) api.StateView {
	t.Helper()
	resp, err := http.Get(base + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	defer resp.Body.Close()
	var st api.StateView
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func waitPopulated(t *testing.T, base string) api.StateView {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st := getState(t, base)
		if st.Phase == "populated" && st.Tick > 0 {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("scene never populated: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServePopulatesFromSource(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"planets":[
			{"name":"Mercury","radius":2,"orbit":[{"x":1,"y":0,"z":0},{"x":0,"y":1,"z":0}]},
			{"name":"Pluto","radius":1,"orbit":[{"x":5,"y":0,"z":0}]}
		]}`))
	}))
	defer source.Close()

	reg := prometheus.NewRegistry()
	a, err := newApp(testConfig(source.URL), logging.Noop(), reg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	run := startApp(t, a)

	st := waitPopulated(t, run.base)
	if st.Bodies != 2 {
		t.Fatalf("bodies = %d, want 2", st.Bodies)
	}

	resp, err := http.Get(run.base + "/api/planets/pluto")
	if err != nil {
		t.Fatalf("GET planet: %v", err)
	}
	var body struct {
		Data api.PlanetView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode planet: %v", err)
	}
	resp.Body.Close()
	if body.Data.Color != "#ffffff" || body.Data.Speed != 0.01 {
		t.Fatalf("pluto = %+v", body.Data)
	}

	if err := run.stop(); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if got := testutil.ToFloat64(a.collector.Fetches.WithLabelValues("ok")); got != 1 {
		t.Fatalf("fetch ok counter = %v", got)
	}
	if got := testutil.ToFloat64(a.collector.Bodies); got != 2 {
		t.Fatalf("bodies gauge = %v", got)
	}
	if got := testutil.ToFloat64(a.collector.Frames); got == 0 {
		t.Fatalf("no frames counted")
	}
}

func TestServeFetchFailureShowsSunOnly(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer source.Close()

	a, err := newApp(testConfig(source.URL), logging.Noop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	run := startApp(t, a)
	defer func() { _ = run.stop() }()

	st := waitPopulated(t, run.base)
	if st.Bodies != 0 {
		t.Fatalf("bodies after failed fetch = %d", st.Bodies)
	}

	resp, err := http.Get(run.base + "/api/scene")
	if err != nil {
		t.Fatalf("GET scene: %v", err)
	}
	defer resp.Body.Close()
	var frame struct {
		Spheres []struct {
			Name string `json:"name"`
		} `json:"spheres"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode scene: %v", err)
	}
	if len(frame.Spheres) != 1 || frame.Spheres[0].Name != "Sun" {
		t.Fatalf("spheres = %+v, want sun only", frame.Spheres)
	}

	if got := testutil.ToFloat64(a.collector.Fetches.WithLabelValues("failed")); got != 1 {
		t.Fatalf("fetch failed counter = %v", got)
	}
}

func TestNewAppAppearanceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appearance.json")
	if err := os.WriteFile(path, []byte(`{"speeds":{"Pluto":0.5},"colors":{"Pluto":"purple"}}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := testConfig("http://127.0.0.1:1")
	cfg.AppearancePath = path
	a, err := newApp(cfg, nil, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	tables := a.scene.Tables()
	if tables.Speeds.Lookup("Pluto") != 0.5 || tables.Colors.Hex("Pluto") != "#800080" {
		t.Fatalf("tables not applied: speed %v colour %s", tables.Speeds.Lookup("Pluto"), tables.Colors.Hex("Pluto"))
	}
	if tables.Speeds.Lookup("Earth") != 0.01 {
		t.Fatalf("defaults should survive a partial file")
	}

	cfg.AppearancePath = filepath.Join(dir, "missing.json")
	if _, err := newApp(cfg, nil, prometheus.NewRegistry()); err == nil {
		t.Fatalf("expected error for missing appearance file")
	}
}

func TestStreamClientConnectedWhileLoadingReceivesOrbits(t *testing.T) {
	release := make(chan struct{})
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(`{"planets":[{"name":"Earth","radius":5,"orbit":[{"x":10,"y":0,"z":0},{"x":0,"y":10,"z":0}]}]}`))
	}))
	defer source.Close()
	defer close(release)

	a, err := newApp(testConfig(source.URL), logging.Noop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	run := startApp(t, a)
	defer func() { _ = run.stop() }()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(run.base, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	read := func() stream.Message {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg stream.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return msg
	}

	if first := read(); first.Type != stream.MessageScene || first.Frame.Phase != "loading" {
		t.Fatalf("first message = %s phase %s", first.Type, first.Frame.Phase)
	}
	release <- struct{}{}

	for {
		msg := read()
		if msg.Type != stream.MessageScene {
			continue
		}
		if msg.Frame.Phase != "populated" || len(msg.Frame.Polylines) != 1 {
			t.Fatalf("scene after populate = phase %s polylines %d", msg.Frame.Phase, len(msg.Frame.Polylines))
		}
		return
	}
}

type slowPublisher struct{ delay time.Duration }

func (p slowPublisher) Publish(context.Context, string, []byte) error {
	time.Sleep(p.delay)
	return nil
}

func TestStepTimesWholeFrame(t *testing.T) {
	a, err := newApp(testConfig("http://127.0.0.1:1"), nil, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	a.emitter = events.NewEmitter(slowPublisher{delay: 20 * time.Millisecond}, nil, events.WithDigestEvery(1))

	a.step()

	var m dto.Metric
	if err := a.collector.TickDurations.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h := m.GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Fatalf("tick samples = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.02 {
		t.Fatalf("tick duration %vs excludes event publishing", h.GetSampleSum())
	}
}
