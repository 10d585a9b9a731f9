// Command gopipeline runs pipelines defined in a YAML configuration file,
// either once from the command line or continuously behind an HTTP server
// with cron schedules.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/nomis52/gopipeline/buildinfo"
	"github.com/nomis52/gopipeline/config"
	"github.com/nomis52/gopipeline/history"
	"github.com/nomis52/gopipeline/injector"
	"github.com/nomis52/gopipeline/logging"
	"github.com/nomis52/gopipeline/metrics"
	"github.com/nomis52/gopipeline/observe"
	"github.com/nomis52/gopipeline/registry"
	"github.com/nomis52/gopipeline/runner"
	"github.com/nomis52/gopipeline/schedule"
	"github.com/nomis52/gopipeline/server"
	"github.com/nomis52/gopipeline/state"
	"github.com/nomis52/gopipeline/steps"
	"github.com/nomis52/gopipeline/telemetry"
)

// Args holds the parsed command line.
type Args struct {
	ConfigPath  string
	ShowVersion bool
	Validate    bool
	RunPipeline string
	Serve       bool
	Schedule    string
	Addr        string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args, err := parseArgs(os.Args[0], os.Args[1:], os.Stderr)
	if err != nil {
		return err
	}

	if args.ShowVersion {
		fmt.Println(buildinfo.Get())
		return nil
	}

	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	a, err := newApp(&cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	if args.Validate {
		fmt.Printf("Configuration validation successful: %s (%d pipelines)\n", args.ConfigPath, len(cfg.Pipelines))
		return nil
	}

	props := buildinfo.Get()
	logger.Info("gopipeline started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
	)

	shutdownTracer, err := telemetry.InitTracer(cfg.Tracing, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shut down tracer", "error", err)
		}
	}()

	if args.Serve {
		return serve(ctx, a, args)
	}
	return runOnce(ctx, a, args.RunPipeline)
}

// app holds everything built from the configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	scrape   *metrics.ScrapeRegistry
	push     *metrics.PushRegistry
	store    history.Store
	registry *registry.Registry
	runner   *runner.Runner
	closers  []io.Closer
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	scrape, err := metrics.NewScrapeRegistry(metrics.ScrapeConfig{
		Namespace: cfg.Metrics.Prefix,
		Runtime:   cfg.Metrics.Runtime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics registry: %w", err)
	}
	a.scrape = scrape

	// Step metrics are pushed when a remote write URL is configured.
	// /metrics still serves the runtime collectors.
	var stepRegistry metrics.Registry = scrape
	if cfg.Metrics.Push.URL != "" {
		instance := cfg.Metrics.Push.Instance
		if instance == "" {
			hostname, err := os.Hostname()
			if err != nil {
				return nil, fmt.Errorf("failed to get hostname: %w", err)
			}
			instance = hostname
		}
		a.push = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Metrics.Push.URL,
			Prefix:   cfg.Metrics.Prefix,
			Job:      cfg.Metrics.Push.Job,
			Instance: instance,
		})
		stepRegistry = a.push
	}
	stepMetrics, err := observe.NewStepMetrics(stepRegistry)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg.History, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	inj := injector.New(
		injector.WithConfig(cfg.Components),
		injector.WithLogger(logger),
	)
	if err := injector.Register[*steps.Correlate](inj); err != nil {
		return nil, err
	}

	a.registry = registry.New(registry.WithActivator(inj), registry.WithLogger(logger))
	catalog := steps.NewCatalog(logger)
	for _, p := range cfg.Pipelines {
		configure, err := catalog.Configure(p)
		if err != nil {
			return nil, err
		}
		if err := registry.Register[*state.Bag](a.registry, p.Name, configure); err != nil {
			return nil, err
		}
	}

	opts := []runner.Option{
		runner.WithStore(store),
		runner.WithLogger(logger),
		runner.WithTracer(otel.Tracer("github.com/nomis52/gopipeline")),
	}
	for _, p := range cfg.Pipelines {
		opts = append(opts, runner.WithTimeout(p.Name, p.Timeout))
	}
	opts = append(opts, runner.WithStepMetrics(stepMetrics))
	a.runner = runner.New(a.registry, opts...)
	return a, nil
}

func newStore(cfg config.HistoryConfig, logger *slog.Logger) (history.Store, error) {
	switch cfg.Type {
	case "disk":
		return history.NewDiskStore(cfg.Path, cfg.MaxRuns, logger)
	case "sqlite":
		return history.NewSQLiteStore(cfg.Path)
	default:
		return history.NewMemoryStore(cfg.MaxRuns), nil
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("failed to close", "error", err)
		}
	}
}

func runOnce(ctx context.Context, a *app, name string) error {
	run, err := a.runner.Run(ctx, name)
	if a.push != nil {
		if pushErr := a.push.Push(context.WithoutCancel(ctx)); pushErr != nil {
			a.logger.Error("failed to push metrics", "error", pushErr)
		}
	}
	if err != nil {
		return fmt.Errorf("pipeline %s failed: %w", name, err)
	}
	fmt.Printf("pipeline %s succeeded in %s (run %s)\n", name, run.Duration(), run.ID)
	return nil
}

func serve(ctx context.Context, a *app, args Args) error {
	specs := schedule.SpecsFromConfig(a.cfg.Pipelines)
	if args.Schedule != "" {
		var err error
		specs, err = schedule.ParseTriggerSpecs(args.Schedule, a.registry.Names())
		if err != nil {
			return err
		}
	}
	manager, err := schedule.NewManager(specs, a.runner, a.logger)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithMetricsHandler(a.scrape.Handler()),
		server.WithSchedule(manager),
		server.WithHistoryStore(a.store),
	}
	if args.Addr != "" {
		opts = append(opts, server.WithListenAddr(args.Addr))
	}
	if a.cfg.Server.TLSCert != "" {
		opts = append(opts, server.WithTLS(a.cfg.Server.TLSCert, a.cfg.Server.TLSKey))
	}
	srv, err := server.New(a.cfg, a.runner, opts...)
	if err != nil {
		return err
	}

	if a.push != nil {
		go a.push.Run(ctx, a.cfg.Metrics.Push.Interval, a.logger)
	}
	return srv.Run(ctx)
}

func parseArgs(program string, arguments []string, output io.Writer) (Args, error) {
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(output)

	var args Args
	var configShort string
	var versionShort bool
	fs.StringVar(&args.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&configShort, "c", "", "Path to config file (shorthand)")
	fs.BoolVar(&args.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&versionShort, "v", false, "Show version information (shorthand)")
	fs.BoolVar(&args.Validate, "validate", false, "Validate configuration and exit")
	fs.StringVar(&args.RunPipeline, "run", "", "Run the named pipeline once and exit")
	fs.BoolVar(&args.Serve, "serve", false, "Serve the HTTP API and run schedules")
	fs.StringVar(&args.Schedule, "schedule", "", "Override schedules, e.g. 'nightly,cleanup:0 2 * * *;report:0 3 * * *'")
	fs.StringVar(&args.Addr, "addr", "", "Override the listen address")

	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: %s [options]\n", program)
		fmt.Fprintf(output, "\nComposable pipeline runner\n\n")
		fmt.Fprintf(output, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(output, "\nExamples:\n")
		fmt.Fprintf(output, "  %s --config /etc/gopipeline/config.yaml --run nightly\n", program)
		fmt.Fprintf(output, "  %s --config config.yaml --serve\n", program)
		fmt.Fprintf(output, "  %s --config config.yaml --validate\n", program)
	}

	if err := fs.Parse(arguments); err != nil {
		return Args{}, err
	}

	if args.ConfigPath == "" {
		args.ConfigPath = configShort
	}
	args.ShowVersion = args.ShowVersion || versionShort
	if args.ShowVersion {
		return args, nil
	}

	if args.ConfigPath == "" {
		return Args{}, errors.New("config flag (-c or --config) is required")
	}
	if !args.Validate && !args.Serve && args.RunPipeline == "" {
		return Args{}, errors.New("one of --run, --serve or --validate is required")
	}
	if args.Serve && args.RunPipeline != "" {
		return Args{}, errors.New("--run and --serve are mutually exclusive")
	}
	return args, nil
}
