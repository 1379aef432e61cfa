// Package execx provides a testable abstraction for command execution.
package execx

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Runner defines an interface for executing external commands.
type Runner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
	// Stream starts the command and returns its stdout. Closing the reader
	// stops the command.
	Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error)
}

// RealRunner implements Runner using os/exec.
type RealRunner struct{}

// NewRealRunner creates a new RealRunner.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// CombinedOutput executes a command and returns its combined stdout and stderr output.
func (r *RealRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Stream executes a long-running command and exposes its stdout.
func (r *RealRunner) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout for %s: %w", name, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	return &streamCloser{ReadCloser: stdout, cmd: cmd, cancel: cancel}, nil
}

type streamCloser struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

func (s *streamCloser) Close() error {
	s.cancel()
	_ = s.ReadCloser.Close()
	_ = s.cmd.Wait()
	return nil
}
