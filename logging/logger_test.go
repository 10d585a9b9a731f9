package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "Defaults", cfg: Config{Output: "discard"}},
		{name: "TextDebug", cfg: Config{Level: "debug", Format: "text", Output: "discard"}},
		{name: "UpperCaseLevel", cfg: Config{Level: "WARN", Output: "discard"}},
		{name: "BadLevel", cfg: Config{Level: "verbose"}, wantErr: true},
		{name: "BadFormat", cfg: Config{Format: "xml"}, wantErr: true},
		{name: "BadPath", cfg: Config{Output: filepath.Join(t.TempDir(), "missing", "log.txt")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger.Logger)
			assert.NoError(t, logger.Close())
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.log")
	logger, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("pipeline finished", "pipeline", "orders")
	logger.Debug("hidden")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"pipeline finished"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.Equal(t, Config{Level: "info", Format: "json", Output: "stdout"}, cfg)

	logger, err := New(Config{Output: "discard"})
	require.NoError(t, err)
	assert.Equal(t, "info", logger.Config().Level)
	assert.Equal(t, slog.LevelInfo, logger.Level())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
