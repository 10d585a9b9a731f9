// Package config loads the gopipeline configuration file.
//
// The file is YAML. Scalar settings can be overridden from the environment
// with the GOPIPELINE_ prefix, using a double underscore to separate nesting
// levels:
//
//	GOPIPELINE_SERVER__ADDR=:9090
//	GOPIPELINE_HISTORY__MAX_RUNS=20
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/gopipeline/logging"
	"github.com/nomis52/gopipeline/telemetry"
)

// EnvPrefix marks environment variables that override the file.
const EnvPrefix = "GOPIPELINE_"

const (
	defaultListenAddr    = ":8080"
	defaultMetricsPrefix = "gopipeline"
	defaultJobName       = "gopipeline"
	defaultPushInterval  = 30 * time.Second
	defaultHistoryType   = "memory"
	defaultMaxRuns       = 100
	defaultServiceName   = "gopipeline"
	defaultStepTimeout   = time.Hour

	redacted = "REDACTED"
)

var (
	validHistoryTypes = []string{"memory", "disk", "sqlite"}
	validExporters    = []string{"none", "stdout"}
	sensitiveArgs     = []string{"password", "token", "secret"}
)

// Config represents the complete application configuration.
type Config struct {
	Logging   logging.Config   `yaml:"logging"`
	Tracing   telemetry.Config `yaml:"tracing"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Server    ServerConfig     `yaml:"server"`
	History   HistoryConfig    `yaml:"history"`
	Pipelines []PipelineConfig `yaml:"pipelines"`
	// Components is handed to the injector. Component fields tagged
	// `config:"a.b"` are resolved against it.
	Components map[string]any `yaml:"components"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Prefix string `yaml:"prefix"`
	// Runtime exports Go runtime and process metrics on /metrics.
	Runtime bool       `yaml:"runtime"`
	Push    PushConfig `yaml:"push"`
}

// PushConfig enables remote write when URL is set.
type PushConfig struct {
	URL      string        `yaml:"url"`
	Job      string        `yaml:"job"`
	Instance string        `yaml:"instance"`
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// TLSCert and TLSKey enable HTTPS. Both or neither must be set.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// HistoryConfig selects where run history is kept.
type HistoryConfig struct {
	// Type is one of memory, disk or sqlite.
	Type string `yaml:"type"`
	// Path is the directory for disk and the database file for sqlite.
	Path    string `yaml:"path"`
	MaxRuns int    `yaml:"max_runs"`
}

// PipelineConfig defines a named pipeline built from catalog steps.
type PipelineConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Schedule is an optional 5 field cron spec.
	Schedule string `yaml:"schedule"`
	// Timeout bounds a single run.
	Timeout time.Duration `yaml:"timeout"`
	Steps   []StepConfig  `yaml:"steps"`
}

// StepConfig is one step of a pipeline, outermost first.
type StepConfig struct {
	Kind string            `yaml:"kind"`
	Args map[string]string `yaml:"args"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Tracing.Exporter != "" && !slices.Contains(validExporters, c.Tracing.Exporter) {
		return fmt.Errorf("tracing exporter must be one of %v, got %q", validExporters, c.Tracing.Exporter)
	}
	if c.Metrics.Push.URL != "" && c.Metrics.Push.Interval <= 0 {
		return errors.New("metrics push interval must be positive")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server tls_cert and tls_key must be set together")
	}
	if !slices.Contains(validHistoryTypes, c.History.Type) {
		return fmt.Errorf("history type must be one of %v, got %q", validHistoryTypes, c.History.Type)
	}
	if c.History.Type != "memory" && c.History.Path == "" {
		return fmt.Errorf("history path is required for %s history", c.History.Type)
	}
	if c.History.MaxRuns <= 0 {
		return errors.New("history max_runs must be positive")
	}

	seen := make(map[string]bool, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if p.Name == "" {
			return fmt.Errorf("pipeline %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate pipeline %q", p.Name)
		}
		seen[p.Name] = true
		if p.Timeout <= 0 {
			return fmt.Errorf("pipeline %q: timeout must be positive", p.Name)
		}
		for j, s := range p.Steps {
			if s.Kind == "" {
				return fmt.Errorf("pipeline %q step %d: kind is required", p.Name, j)
			}
		}
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "none"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaultServiceName
	}
	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = defaultMetricsPrefix
	}
	if c.Metrics.Push.Job == "" {
		c.Metrics.Push.Job = defaultJobName
	}
	if c.Metrics.Push.Interval == 0 {
		c.Metrics.Push.Interval = defaultPushInterval
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultListenAddr
	}
	if c.History.Type == "" {
		c.History.Type = defaultHistoryType
	}
	if c.History.MaxRuns == 0 {
		c.History.MaxRuns = defaultMaxRuns
	}
	for i := range c.Pipelines {
		if c.Pipelines[i].Timeout == 0 {
			c.Pipelines[i].Timeout = defaultStepTimeout
		}
	}
}

// Pipeline returns the named pipeline definition.
func (c *Config) Pipeline(name string) (PipelineConfig, bool) {
	for _, p := range c.Pipelines {
		if p.Name == name {
			return p, true
		}
	}
	return PipelineConfig{}, false
}

// Redacted returns a copy with secret step arguments replaced.
func (c *Config) Redacted() Config {
	out := *c
	out.Pipelines = make([]PipelineConfig, len(c.Pipelines))
	for i, p := range c.Pipelines {
		steps := make([]StepConfig, len(p.Steps))
		for j, s := range p.Steps {
			args := make(map[string]string, len(s.Args))
			for k, v := range s.Args {
				if isSensitive(k) {
					v = redacted
				}
				args[k] = v
			}
			steps[j] = StepConfig{Kind: s.Kind, Args: args}
		}
		p.Steps = steps
		out.Pipelines[i] = p
	}
	return out
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveArgs {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// LoadConfig reads the YAML config file at the given path, applies
// environment overrides and defaults, and validates the result.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays GOPIPELINE_ environment variables onto cfg. Only keys
// that are set are changed.
func ApplyEnv(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(cfg)
}
