// Package fakerunner provides a fake implementation of execx.Runner for testing.
package fakerunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Runner is a fake implementation of execx.Runner for testing.
type Runner struct {
	mu      sync.Mutex
	outputs map[string][]byte
	errors  map[string]error
	streams map[string]func() io.ReadCloser
	calls   []Call
}

// Call represents a captured command execution call.
type Call struct {
	Name string
	Args []string
}

// New creates a new fake runner.
func New() *Runner {
	return &Runner{
		outputs: make(map[string][]byte),
		errors:  make(map[string]error),
		streams: make(map[string]func() io.ReadCloser),
		calls:   []Call{},
	}
}

// SetOutput sets the output for a specific command.
func (r *Runner) SetOutput(name string, args []string, output []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[r.makeKey(name, args)] = output
}

// SetError sets the error for a specific command.
func (r *Runner) SetError(name string, args []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[r.makeKey(name, args)] = err
}

// SetStream registers a reader factory returned by Stream for a specific command.
func (r *Runner) SetStream(name string, args []string, open func() io.ReadCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[r.makeKey(name, args)] = open
}

// CombinedOutput implements execx.Runner.
func (r *Runner) CombinedOutput(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Name: name, Args: args})

	key := r.makeKey(name, args)

	if err, exists := r.errors[key]; exists {
		return nil, err
	}

	if output, exists := r.outputs[key]; exists {
		return output, nil
	}

	return []byte{}, nil
}

// Stream implements execx.Runner. Unregistered commands yield the
// configured output (or nothing) as a finite stream.
func (r *Runner) Stream(_ context.Context, name string, args ...string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Name: name, Args: args})

	key := r.makeKey(name, args)

	if err, exists := r.errors[key]; exists {
		return nil, err
	}

	if open, exists := r.streams[key]; exists {
		return open(), nil
	}

	return io.NopCloser(bytes.NewReader(r.outputs[key])), nil
}

// GetCalls returns all captured command calls.
func (r *Runner) GetCalls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Reset clears all stored outputs, errors, and calls.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = make(map[string][]byte)
	r.errors = make(map[string]error)
	r.streams = make(map[string]func() io.ReadCloser)
	r.calls = []Call{}
}

func (r *Runner) makeKey(name string, args []string) string {
	return fmt.Sprintf("%s %s", name, strings.Join(args, " "))
}
