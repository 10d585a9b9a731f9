package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/nomis52/gopipeline/pipeline"
	"github.com/nomis52/gopipeline/state"
)

// ErrStepFailed is returned by the fail step.
var ErrStepFailed = errors.New("step failed")

// Log writes a message with the run's correlation id and continues.
type Log struct {
	Logger  *slog.Logger
	Level   slog.Level
	Message string
}

// Process implements pipeline.Component.
func (l *Log) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	l.Logger.Log(ctx, l.Level, l.Message, "correlation_id", bag.CorrelationID())
	return next(ctx, bag)
}

// Set stores a fixed value and continues.
type Set struct {
	Key   string
	Value string
}

// Process implements pipeline.Component.
func (s *Set) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	bag.Set(s.Key, s.Value)
	return next(ctx, bag)
}

// Require ends the run successfully, without running later steps, unless
// Key is present.
type Require struct {
	Logger *slog.Logger
	Key    string
}

// Process implements pipeline.Component.
func (r *Require) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	if _, ok := bag.Get(r.Key); !ok {
		r.Logger.InfoContext(ctx, "required key missing, stopping", "key", r.Key, "correlation_id", bag.CorrelationID())
		return nil
	}
	return next(ctx, bag)
}

// Fail returns an error wrapping ErrStepFailed.
type Fail struct {
	Message string
}

// Process implements pipeline.Component.
func (f *Fail) Process(context.Context, *state.Bag, pipeline.Next[*state.Bag]) error {
	return fmt.Errorf("%w: %s", ErrStepFailed, f.Message)
}

// Exec runs a local command. Its trimmed stdout is stored under StoreAs
// when set.
type Exec struct {
	Logger  *slog.Logger
	Path    string
	Args    []string
	Dir     string
	StoreAs string
}

// Process implements pipeline.Component.
func (e *Exec) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Dir = e.Dir
	var stderr strings.Builder
	cmd.Stderr = &stderr

	e.Logger.DebugContext(ctx, "running command", "path", e.Path, "args", e.Args)
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("command %s failed: %w: %s", e.Path, err, msg)
		}
		return fmt.Errorf("command %s failed: %w", e.Path, err)
	}
	if e.StoreAs != "" {
		bag.Set(e.StoreAs, strings.TrimSpace(string(out)))
	}
	return next(ctx, bag)
}
