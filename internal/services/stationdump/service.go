// Package stationdump fetches station dumps by running iw locally.
package stationdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for fetching a raw station dump.
type Service interface {
	Fetch(ctx context.Context, toolPath, iface string) ([]byte, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct {
	// WaitDelay bounds how long output pipes are drained after the process is killed.
	WaitDelay time.Duration
}

// Execute runs a command with an explicit argument vector and captures stdout and stderr separately.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = time.Second
	}
	// Run waits for the process, so it is reaped on every exit path.
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new station dump fetcher.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new fetcher with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// Args returns the argument vector passed to the tool.
func Args(iface string) []string {
	return []string{"dev", iface, "station", "dump"}
}

// Fetch runs `<toolPath> dev <iface> station dump` and returns its stdout.
// Callers bound the call with a context deadline.
func (s *Impl) Fetch(ctx context.Context, toolPath, iface string) ([]byte, error) {
	if toolPath == "" || iface == "" {
		return nil, &models.FetchError{
			Reason:    models.FetchSpawnFailed,
			Tool:      toolPath,
			Interface: iface,
			Err:       errors.New("tool path and interface are required"),
		}
	}

	s.logger.Debug().Str("tool", toolPath).Str("interface", iface).Msg("fetching station dump")

	start := time.Now()
	stdout, stderr, err := s.executor.Execute(ctx, toolPath, Args(iface)...)
	if err != nil {
		return nil, classify(ctx, toolPath, iface, stdout, stderr, err)
	}

	s.logger.Debug().
		Int("bytes", len(stdout)).
		Dur("duration", time.Since(start)).
		Msg("station dump fetched")

	return stdout, nil
}

func classify(ctx context.Context, toolPath, iface string, stdout, stderr []byte, err error) *models.FetchError {
	fetchErr := &models.FetchError{
		Tool:      toolPath,
		Interface: iface,
		ExitCode:  -1,
		Stderr:    string(bytes.TrimSpace(stderr)),
		Err:       err,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		fetchErr.Reason = models.FetchTimeout
		fetchErr.Err = fmt.Errorf("%w (process: %v)", ctxErr, err)
		return fetchErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		fetchErr.Reason = models.FetchNonZeroExit
		fetchErr.ExitCode = exitErr.ExitCode()
		if len(stdout) > 0 {
			fetchErr.Output = stdout
		}
		return fetchErr
	}

	fetchErr.Reason = models.FetchSpawnFailed
	return fetchErr
}
