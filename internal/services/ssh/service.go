// Package ssh fetches station dumps by running iw on a remote access point.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/fgeck/gostation-homelab/internal/services/stationdump"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Service defines the interface for remote SSH operations.
type Service interface {
	Fetch(ctx context.Context, toolPath, iface string) ([]byte, error)
	TestConnection(ctx context.Context) (*models.SSHResult, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	Run(cmd string, stdout, stderr *bytes.Buffer) error
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) Run(cmd string, stdout, stderr *bytes.Buffer) error {
	s.session.Stdout = stdout
	s.session.Stderr = stderr
	return s.session.Run(cmd)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	cfg           models.RemoteConfig
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new remote fetcher for the given access point.
func New(logger zerolog.Logger, cfg models.RemoteConfig) *Impl {
	return &Impl{
		cfg:           cfg,
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new remote fetcher with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, cfg models.RemoteConfig, factory ClientFactory) *Impl {
	return &Impl{
		cfg:           cfg,
		clientFactory: factory,
		logger:        logger,
	}
}

func (s *Impl) buildConfig() (*ssh.ClientConfig, error) {
	var key []byte
	var err error

	// Load private key from file or use provided key
	if len(s.cfg.PrivateKey) > 0 {
		key = s.cfg.PrivateKey
	} else if s.cfg.KeyPath != "" {
		key, err = os.ReadFile(s.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", s.cfg.KeyPath, err)
		}
	} else {
		return nil, fmt.Errorf("no private key provided")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ssh.ClientConfig{
		User: s.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // homelab environment
		Timeout:         10 * time.Second,
	}, nil
}

// connect dials the access point, giving up when ctx is done.
func (s *Impl) connect(ctx context.Context) (SSHClient, error) {
	sshConfig, err := s.buildConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	clientChan := make(chan struct {
		client SSHClient
		err    error
	}, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- struct {
			client SSHClient
			err    error
		}{client, err}
	}()

	select {
	case <-ctx.Done():
		// Close a client that connects after we gave up.
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect: %w", res.err)
		}
		return res.client, nil
	}
}

// run executes cmd remotely. Cancelling ctx closes the session, which terminates the remote command.
func (s *Impl) run(ctx context.Context, client SSHClient, cmd string) ([]byte, []byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd, &stdout, &stderr)
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return nil, nil, ctx.Err()
	case err := <-done:
		return stdout.Bytes(), stderr.Bytes(), err
	}
}

// Fetch runs `<toolPath> dev <iface> station dump` on the remote host.
func (s *Impl) Fetch(ctx context.Context, toolPath, iface string) ([]byte, error) {
	fetchErr := func(reason models.FetchReason, err error) *models.FetchError {
		return &models.FetchError{Reason: reason, Tool: toolPath, Interface: iface, ExitCode: -1, Err: err}
	}

	if toolPath == "" || iface == "" {
		return nil, fetchErr(models.FetchSpawnFailed, errors.New("tool path and interface are required"))
	}

	s.logger.Debug().
		Str("host", s.cfg.Host).
		Str("tool", toolPath).
		Str("interface", iface).
		Msg("fetching remote station dump")

	client, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fetchErr(models.FetchTimeout, err)
		}
		return nil, fetchErr(models.FetchSpawnFailed, err)
	}
	defer client.Close()

	cmd := quoteCommand(append([]string{toolPath}, stationdump.Args(iface)...))
	stdout, stderr, err := s.run(ctx, client, cmd)
	if err == nil {
		return stdout, nil
	}
	if ctx.Err() != nil {
		return nil, fetchErr(models.FetchTimeout, err)
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res := fetchErr(models.FetchNonZeroExit, err)
		res.ExitCode = exitErr.ExitStatus()
		res.Stderr = string(bytes.TrimSpace(stderr))
		if len(stdout) > 0 {
			res.Output = stdout
		}
		return nil, res
	}
	return nil, fetchErr(models.FetchSpawnFailed, err)
}

// TestConnection verifies SSH connectivity without touching the radio.
func (s *Impl) TestConnection(ctx context.Context) (*models.SSHResult, error) {
	result := &models.SSHResult{}

	s.logger.Debug().
		Str("host", s.cfg.Host).
		Int("port", s.cfg.Port).
		Msg("testing SSH connection")

	client, err := s.connect(ctx)
	if err != nil {
		result.Error = err
		return result, nil
	}
	defer client.Close()

	stdout, _, err := s.run(ctx, client, "echo OK")
	result.Output = string(stdout)
	result.CommandRun = true

	if err != nil {
		result.Error = fmt.Errorf("test command failed: %w", err)
	}

	return result, nil
}

// quoteCommand joins args into a POSIX shell command line with every argument
// single-quoted. SSH carries one command string, not an argument vector.
func quoteCommand(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
