package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/gopipeline/config"
	"github.com/nomis52/gopipeline/history"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Args
		wantErr string
	}{
		{
			name: "run",
			args: []string{"-c", "config.yaml", "-run", "nightly"},
			want: Args{ConfigPath: "config.yaml", RunPipeline: "nightly"},
		},
		{
			name: "serve with long flags",
			args: []string{"--config", "config.yaml", "--serve", "--addr", ":9090"},
			want: Args{ConfigPath: "config.yaml", Serve: true, Addr: ":9090"},
		},
		{
			name: "version needs no config",
			args: []string{"-v"},
			want: Args{ShowVersion: true},
		},
		{
			name:    "missing config",
			args:    []string{"-run", "nightly"},
			wantErr: "config flag",
		},
		{
			name:    "no mode",
			args:    []string{"-c", "config.yaml"},
			wantErr: "one of --run, --serve or --validate",
		},
		{
			name:    "run and serve",
			args:    []string{"-c", "config.yaml", "-run", "x", "-serve"},
			wantErr: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := parseArgs("gopipeline", tt.args, &out)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		History: config.HistoryConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")},
		Pipelines: []config.PipelineConfig{
			{
				Name: "greet",
				Steps: []config.StepConfig{
					{Kind: "set", Args: map[string]string{"key": "greeting", "value": "hello"}},
					{Kind: "component", Args: map[string]string{"name": "correlate"}},
					{Kind: "require", Args: map[string]string{"key": "greeting"}},
					{Kind: "log", Args: map[string]string{"message": "greeted"}},
				},
			},
			{
				Name:  "broken",
				Steps: []config.StepConfig{{Kind: "fail", Args: map[string]string{"message": "boom"}}},
			},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewApp_RunsConfiguredPipelines(t *testing.T) {
	a, err := newApp(testConfig(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer a.close()

	assert.Equal(t, []string{"broken", "greet"}, a.registry.Names())
	assert.Nil(t, a.push)

	require.NoError(t, runOnce(context.Background(), a, "greet"))

	err = runOnce(context.Background(), a, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline broken failed")

	runs, err := a.store.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byName := map[string]history.Run{}
	for _, run := range runs {
		byName[run.Pipeline] = run
	}
	assert.True(t, byName["greet"].Succeeded())
	assert.False(t, byName["broken"].Succeeded())
}

func TestNewApp_BadStep(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipelines[0].Steps = append(cfg.Pipelines[0].Steps, config.StepConfig{Kind: "teleport"})

	_, err := newApp(cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `pipeline "greet" step 4`)
}
