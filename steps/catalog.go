// Package steps builds *state.Bag pipelines from configuration.
//
// A Catalog maps step kinds to factories. Each configured step becomes a
// component instance; the special kind "component" activates a named
// component type through the pipeline's activator instead.
//
//	catalog := steps.NewCatalog(logger)
//	configure, err := catalog.Configure(cfg.Pipelines[0])
//	registry.Register(reg, cfg.Pipelines[0].Name, configure)
package steps

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/nomis52/gopipeline/clients/sshclient"
	"github.com/nomis52/gopipeline/config"
	"github.com/nomis52/gopipeline/pipeline"
	"github.com/nomis52/gopipeline/state"
)

// KindComponent selects a registered component type by its "name" argument.
const KindComponent = "component"

var (
	// ErrUnknownKind is returned for a kind the catalog does not know.
	ErrUnknownKind = errors.New("unknown step kind")
	// ErrUnknownComponent is returned for an unregistered component name.
	ErrUnknownComponent = errors.New("unknown component")
)

// Factory creates a step from its arguments.
type Factory func(args Args) (pipeline.Component[*state.Bag], error)

// Catalog holds the step kinds and component names available to
// configured pipelines.
type Catalog struct {
	logger     *slog.Logger
	dial       Dialer
	kinds      map[string]Factory
	components map[string]func(b *pipeline.Builder[*state.Bag])
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithDialer replaces the SSH dialer used by ssh steps.
func WithDialer(d Dialer) Option {
	return func(c *Catalog) {
		c.dial = d
	}
}

// NewCatalog creates a catalog with the built-in kinds and the Correlate
// component.
func NewCatalog(logger *slog.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		logger:     logger,
		dial:       dialSSH,
		kinds:      make(map[string]Factory),
		components: make(map[string]func(b *pipeline.Builder[*state.Bag])),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.kinds["log"] = c.newLog
	c.kinds["set"] = newSet
	c.kinds["require"] = c.newRequire
	c.kinds["fail"] = newFail
	c.kinds["exec"] = c.newExec
	c.kinds["ssh"] = c.newSSH
	c.components["correlate"] = func(b *pipeline.Builder[*state.Bag]) {
		pipeline.UseComponent[*Correlate](b)
	}
	return c
}

// Register adds a step kind.
func (c *Catalog) Register(kind string, f Factory) error {
	if kind == KindComponent {
		return fmt.Errorf("kind %q is reserved", kind)
	}
	if _, exists := c.kinds[kind]; exists {
		return fmt.Errorf("step kind %q already registered", kind)
	}
	c.kinds[kind] = f
	return nil
}

// RegisterComponent makes a component type available by name. C is
// activated per traversal by the builder's activator.
func RegisterComponent[C pipeline.Component[*state.Bag]](c *Catalog, name string) error {
	if _, exists := c.components[name]; exists {
		return fmt.Errorf("component %q already registered", name)
	}
	c.components[name] = func(b *pipeline.Builder[*state.Bag]) {
		pipeline.UseComponent[C](b)
	}
	return nil
}

// Kinds returns the registered step kinds in sorted order.
func (c *Catalog) Kinds() []string {
	return slices.Sorted(maps.Keys(c.kinds))
}

// Components returns the registered component names in sorted order.
func (c *Catalog) Components() []string {
	return slices.Sorted(maps.Keys(c.components))
}

// Handler creates the step for kind with args.
func (c *Catalog) Handler(kind string, args map[string]string) (pipeline.Component[*state.Bag], error) {
	f, ok := c.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	step, err := f(Args(args))
	if err != nil {
		return nil, fmt.Errorf("%s step: %w", kind, err)
	}
	return step, nil
}

// Configure resolves every step of p up front and returns a function that
// adds them to a builder, outermost first.
func (c *Catalog) Configure(p config.PipelineConfig) (func(b *pipeline.Builder[*state.Bag]), error) {
	uses := make([]func(b *pipeline.Builder[*state.Bag]), 0, len(p.Steps))
	for i, s := range p.Steps {
		use, err := c.resolve(s)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q step %d: %w", p.Name, i, err)
		}
		uses = append(uses, use)
	}
	return func(b *pipeline.Builder[*state.Bag]) {
		for _, use := range uses {
			use(b)
		}
	}, nil
}

func (c *Catalog) resolve(s config.StepConfig) (func(b *pipeline.Builder[*state.Bag]), error) {
	if s.Kind == KindComponent {
		name := s.Args["name"]
		use, ok := c.components[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
		}
		return use, nil
	}
	step, err := c.Handler(s.Kind, s.Args)
	if err != nil {
		return nil, err
	}
	return func(b *pipeline.Builder[*state.Bag]) {
		b.UseInstance(step)
	}, nil
}

func (c *Catalog) newLog(args Args) (pipeline.Component[*state.Bag], error) {
	msg, err := args.Required("message")
	if err != nil {
		return nil, err
	}
	level, err := args.Level("level")
	if err != nil {
		return nil, err
	}
	return &Log{Logger: c.logger, Level: level, Message: msg}, nil
}

func newSet(args Args) (pipeline.Component[*state.Bag], error) {
	key, err := args.Required("key")
	if err != nil {
		return nil, err
	}
	return &Set{Key: key, Value: args["value"]}, nil
}

func (c *Catalog) newRequire(args Args) (pipeline.Component[*state.Bag], error) {
	key, err := args.Required("key")
	if err != nil {
		return nil, err
	}
	return &Require{Logger: c.logger, Key: key}, nil
}

func newFail(args Args) (pipeline.Component[*state.Bag], error) {
	msg := args["message"]
	if msg == "" {
		msg = "fail step reached"
	}
	return &Fail{Message: msg}, nil
}

func (c *Catalog) newExec(args Args) (pipeline.Component[*state.Bag], error) {
	command, err := args.Required("command")
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("argument %q is required", "command")
	}
	return &Exec{
		Logger:  c.logger,
		Path:    fields[0],
		Args:    fields[1:],
		Dir:     args["dir"],
		StoreAs: args["store_as"],
	}, nil
}

func (c *Catalog) newSSH(args Args) (pipeline.Component[*state.Bag], error) {
	host, err := args.Required("host")
	if err != nil {
		return nil, err
	}
	command, err := args.Required("command")
	if err != nil {
		return nil, err
	}
	keyFile, err := args.Required("key_file")
	if err != nil {
		return nil, err
	}
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	insecure, err := args.Bool("insecure_ignore_host_key")
	if err != nil {
		return nil, err
	}
	timeout, err := args.Duration("timeout", sshclient.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return &SSH{
		Logger: c.logger,
		Config: sshclient.Config{
			Host:                  host,
			User:                  args["user"],
			PrivateKeyPEM:         key,
			KnownHostsFile:        args["known_hosts"],
			InsecureIgnoreHostKey: insecure,
			Timeout:               timeout,
		},
		Command: command,
		StoreAs: args["store_as"],
		dial:    c.dial,
	}, nil
}
