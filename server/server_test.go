package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/gopipeline/config"
	"github.com/nomis52/gopipeline/history"
	"github.com/nomis52/gopipeline/metrics"
	"github.com/nomis52/gopipeline/observe"
	"github.com/nomis52/gopipeline/pipeline"
	"github.com/nomis52/gopipeline/registry"
	"github.com/nomis52/gopipeline/runner"
	"github.com/nomis52/gopipeline/schedule"
	"github.com/nomis52/gopipeline/state"
)

type Touch struct{}

func (Touch) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	bag.Set("touched", true)
	return next(ctx, bag)
}

type testEnv struct {
	server *httptest.Server
	runner *runner.Runner
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	reg := registry.New(registry.WithLogger(logger))
	require.NoError(t, registry.Register(reg, "touch", func(b *pipeline.Builder[*state.Bag]) {
		pipeline.UseComponent[Touch](b)
	}))

	scrape, err := metrics.NewScrapeRegistry(metrics.ScrapeConfig{Namespace: "gopipeline"})
	require.NoError(t, err)
	stepMetrics, err := observe.NewStepMetrics(scrape)
	require.NoError(t, err)

	store := history.NewMemoryStore(10)
	r := runner.New(reg, runner.WithStore(store), runner.WithLogger(logger), runner.WithStepMetrics(stepMetrics))

	cfg := &config.Config{Pipelines: []config.PipelineConfig{
		{Name: "touch", Description: "touches the bag", Steps: []config.StepConfig{{Kind: "component", Args: map[string]string{"name": "touch"}}}},
	}}
	cfg.SetDefaults()

	opts = append([]Option{
		WithLogger(logger),
		WithMetricsHandler(scrape.Handler()),
		WithHistoryStore(store),
	}, opts...)
	srv, err := New(cfg, r, opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, runner: r}
}

func (e *testEnv) do(t *testing.T, method, path string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_RunAndHistory(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/pipelines/touch/run")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	env.runner.Wait()

	resp, body := env.do(t, http.MethodGet, "/api/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(body), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "touch", runs[0].Pipeline)
	assert.Equal(t, runner.TriggerAPI, runs[0].Trigger)
	assert.True(t, runs[0].Succeeded())

	resp, body = env.do(t, http.MethodGet, "/api/history/"+runs[0].ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, runs[0].ID)

	resp, _ = env.do(t, http.MethodGet, "/api/history/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `gopipeline_steps_total{component="server.Touch",outcome="succeeded",pipeline="touch"} 1`)
}

func TestServer_Routes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{http.MethodGet, "/health", http.StatusOK, "ok"},
		{http.MethodGet, "/config", http.StatusOK, "name: touch"},
		{http.MethodGet, "/api/pipelines", http.StatusOK, `"description":"touches the bag"`},
		{http.MethodGet, "/api/status", http.StatusOK, `"scheduled":false`},
		{http.MethodPost, "/api/pipelines/missing/run", http.StatusNotFound, "pipeline not registered"},
		{http.MethodGet, "/api/pipelines/touch/run", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				assert.Contains(t, body, tt.wantBody)
			}
		})
	}
}

func TestServer_NextRun(t *testing.T) {
	manager, err := schedule.NewManager([]schedule.TriggerSpec{
		{Pipelines: []string{"touch"}, CronSpec: "0 2 * * *"},
	}, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	env := newTestEnv(t, WithSchedule(manager))
	_, body := env.do(t, http.MethodGet, "/api/status")
	assert.Contains(t, body, `"scheduled":true`)
	assert.True(t, strings.Contains(body, `"next_run":"`))
}

func TestServer_RunShutdown(t *testing.T) {
	reg := registry.New()
	cfg := &config.Config{}
	cfg.SetDefaults()
	srv, err := New(cfg, runner.New(reg), WithListenAddr("127.0.0.1:0"), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
