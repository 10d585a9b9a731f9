// Package telemetry sets up OpenTelemetry tracing for gopipeline.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config selects where spans go.
type Config struct {
	// Exporter is "stdout" or "none". Empty means "none".
	Exporter string `yaml:"exporter"`
	// ServiceName defaults to "gopipeline".
	ServiceName string `yaml:"service_name"`
	// PrettyPrint indents stdout output.
	PrettyPrint bool `yaml:"pretty_print"`
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// InitTracer installs a global tracer provider for cfg. With the "none"
// exporter the global no-op provider is left in place.
func InitTracer(cfg Config, logger *slog.Logger) (Shutdown, error) {
	return initTracer(cfg, os.Stdout, logger)
}

func initTracer(cfg Config, w io.Writer, logger *slog.Logger) (Shutdown, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "gopipeline"
	}

	switch cfg.Exporter {
	case "", "none":
		logger.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating stdout exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized", slog.String("service", cfg.ServiceName), slog.String("exporter", cfg.Exporter))
	return tp.Shutdown, nil
}
