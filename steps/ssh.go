package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nomis52/gopipeline/clients/sshclient"
	"github.com/nomis52/gopipeline/pipeline"
	"github.com/nomis52/gopipeline/state"
)

// RemoteRunner runs commands on a connected host.
type RemoteRunner interface {
	Run(ctx context.Context, command string) (sshclient.Result, error)
	Close() error
}

// Dialer opens a connection for an SSH step.
type Dialer func(ctx context.Context, cfg sshclient.Config) (RemoteRunner, error)

func dialSSH(ctx context.Context, cfg sshclient.Config) (RemoteRunner, error) {
	return sshclient.Dial(ctx, cfg)
}

// SSH runs a command on a remote host. A connection is opened per run.
type SSH struct {
	Logger  *slog.Logger
	Config  sshclient.Config
	Command string
	StoreAs string
	dial    Dialer
}

// Process implements pipeline.Component.
func (s *SSH) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	client, err := s.dial(ctx, s.Config)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.Config.Host, err)
	}
	defer client.Close()

	s.Logger.DebugContext(ctx, "running remote command", "host", s.Config.Host, "command", s.Command)
	res, err := client.Run(ctx, s.Command)
	if err != nil {
		if msg := strings.TrimSpace(res.Stderr); msg != "" {
			return fmt.Errorf("remote command on %s failed: %w: %s", s.Config.Host, err, msg)
		}
		return fmt.Errorf("remote command on %s failed: %w", s.Config.Host, err)
	}
	if s.StoreAs != "" {
		bag.Set(s.StoreAs, strings.TrimSpace(res.Stdout))
	}
	return next(ctx, bag)
}
