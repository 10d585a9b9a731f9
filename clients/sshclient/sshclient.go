// Package sshclient runs commands on remote hosts over SSH.
package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout bounds connection setup.
const DefaultTimeout = 10 * time.Second

// Config describes how to reach a host.
type Config struct {
	// Host is "host:port". Port 22 is assumed when omitted.
	Host string
	User string
	// PrivateKeyPEM is the private key used for public key authentication.
	PrivateKeyPEM []byte
	// KnownHostsFile verifies the host key. Required unless InsecureIgnoreHostKey is set.
	KnownHostsFile string
	// InsecureIgnoreHostKey accepts any host key. Only for tests and lab setups.
	InsecureIgnoreHostKey bool
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

// SSHClient holds one connection that can run many commands.
type SSHClient struct {
	client *ssh.Client
}

// Result is the output of a remote command.
type Result struct {
	Stdout string
	Stderr string
}

// Dial connects and authenticates.
func Dial(ctx context.Context, cfg Config) (*SSHClient, error) {
	signer, err := ssh.ParsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &SSHClient{client: ssh.NewClient(c, chans, reqs)}, nil
}

func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if cfg.KnownHostsFile == "" {
		return nil, errors.New("known hosts file required unless host key checking is disabled")
	}
	cb, err := knownhosts.New(cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}
	return cb, nil
}

// Run executes command in a new session. Cancelling ctx closes the session.
func (c *SSHClient) Run(ctx context.Context, command string) (Result, error) {
	var stdout, stderr bytes.Buffer
	err := c.RunWithWriter(ctx, command, &stdout, &stderr)
	return Result{Stdout: stdout.String(), Stderr: stderr.String()}, err
}

// RunWithWriter streams the command's output to the given writers. A nil
// writer discards that stream.
func (c *SSHClient) RunWithWriter(ctx context.Context, command string, stdout, stderr io.Writer) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to run command: %w", err)
		}
		return nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		return ctx.Err()
	}
}

// Close closes the connection.
func (c *SSHClient) Close() error {
	return c.client.Close()
}
