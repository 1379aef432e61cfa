package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
)

// ErrFakeUnreachable is the cause used when a FakeRuntime is unreachable.
var ErrFakeUnreachable = errors.New("fake runtime unreachable")

// FakeCall records one runtime call.
type FakeCall struct {
	Op       string
	Service  string
	Override Override
	Spec     ServiceSpec
}

// FakeRuntime is an in-memory Runtime. A started service prints its scripted
// output once, to the first follower attaching after the start. Later
// followers only see lines sent with Emit.
type FakeRuntime struct {
	mu        sync.Mutex
	services  map[string]ServiceSpec
	running   map[string]bool
	scripts   map[string][]string
	errs      map[string]error
	followers map[string][]*io.PipeWriter
	fresh     map[string]bool
	files     map[string][]byte
	calls     []FakeCall

	unreachable bool
}

// NewFakeRuntime creates an empty fake runtime.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		services:  make(map[string]ServiceSpec),
		running:   make(map[string]bool),
		scripts:   make(map[string][]string),
		errs:      make(map[string]error),
		followers: make(map[string][]*io.PipeWriter),
		fresh:     make(map[string]bool),
		files:     make(map[string][]byte),
	}
}

// SetUnreachable makes every call fail with a RuntimeUnavailableError.
func (f *FakeRuntime) SetUnreachable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreachable = v
}

// FailNext makes the next call of op return err. A nil err clears it.
func (f *FakeRuntime) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Script sets the lines a service prints to followers once running.
func (f *FakeRuntime) Script(service string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[service] = lines
}

// Emit writes a line to every current follower of service.
func (f *FakeRuntime) Emit(service, line string) {
	f.mu.Lock()
	ws := append([]*io.PipeWriter(nil), f.followers[service]...)
	f.mu.Unlock()
	for _, w := range ws {
		_, _ = io.WriteString(w, line+"\n")
	}
}

// SetRunning forces the run state of a defined service without producing
// startup output.
func (f *FakeRuntime) SetRunning(service string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[service] = running
	delete(f.fresh, service)
}

// Calls returns every recorded call.
func (f *FakeRuntime) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// CountCalls returns how often op was called for service.
func (f *FakeRuntime) CountCalls(op, service string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op && c.Service == service {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (f *FakeRuntime) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Service returns the current definition of service.
func (f *FakeRuntime) Service(service string) (ServiceSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[service]
	return s, ok
}

// File returns a pushed file.
func (f *FakeRuntime) File(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path]
	return b, ok
}

func (f *FakeRuntime) begin(c FakeCall) error {
	f.calls = append(f.calls, c)
	if f.unreachable {
		return NewRuntimeUnavailableError(c.Op, c.Service, ErrFakeUnreachable)
	}
	if err, ok := f.errs[c.Op]; ok {
		delete(f.errs, c.Op)
		return err
	}
	return nil
}

// ApplyLayer implements Runtime.
func (f *FakeRuntime) ApplyLayer(_ context.Context, _ string, override Override, spec ServiceSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(FakeCall{Op: "apply", Service: spec.Name, Override: override, Spec: spec}); err != nil {
		return err
	}

	existing, ok := f.services[spec.Name]
	if !ok || override == OverrideReplace {
		spec.Environment = maps.Clone(spec.Environment)
		f.services[spec.Name] = spec
		return nil
	}
	if spec.Command != "" {
		existing.Command = spec.Command
	}
	if spec.Summary != "" {
		existing.Summary = spec.Summary
	}
	if spec.Startup != "" {
		existing.Startup = spec.Startup
	}
	env := maps.Clone(existing.Environment)
	if env == nil {
		env = make(map[string]string)
	}
	maps.Copy(env, spec.Environment)
	existing.Environment = env
	f.services[spec.Name] = existing
	return nil
}

// Start implements Runtime.
func (f *FakeRuntime) Start(_ context.Context, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(FakeCall{Op: "start", Service: service}); err != nil {
		return err
	}
	if _, ok := f.services[service]; !ok {
		return NewServiceError("start", service, fmt.Errorf("service %q not found", service))
	}
	f.running[service] = true
	f.fresh[service] = true
	return nil
}

// Stop implements Runtime.
func (f *FakeRuntime) Stop(_ context.Context, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(FakeCall{Op: "stop", Service: service}); err != nil {
		return err
	}
	f.running[service] = false
	delete(f.fresh, service)
	return nil
}

// ServiceStatus implements Runtime.
func (f *FakeRuntime) ServiceStatus(_ context.Context, service string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable {
		return Status{}, NewRuntimeUnavailableError("status", service, ErrFakeUnreachable)
	}
	if err, ok := f.errs["status"]; ok {
		delete(f.errs, "status")
		return Status{}, err
	}
	_, exists := f.services[service]
	return Status{Exists: exists, Running: exists && f.running[service]}, nil
}

// StreamLogs implements Runtime. Without follow it returns the scripted
// output of a running service and ends. A follower starts at the current end
// of the output.
func (f *FakeRuntime) StreamLogs(ctx context.Context, service string, follow bool) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(FakeCall{Op: "logs", Service: service}); err != nil {
		return nil, err
	}

	if !follow {
		if !f.running[service] || len(f.scripts[service]) == 0 {
			return io.NopCloser(strings.NewReader("")), nil
		}
		return io.NopCloser(strings.NewReader(strings.Join(f.scripts[service], "\n") + "\n")), nil
	}

	var script []string
	if f.running[service] && f.fresh[service] {
		script = append(script, f.scripts[service]...)
		delete(f.fresh, service)
	}

	ctx, cancel := context.WithCancel(ctx)
	r, w := io.Pipe()
	f.followers[service] = append(f.followers[service], w)
	go func() {
		defer func() {
			f.detach(service, w)
			_ = w.CloseWithError(io.EOF)
		}()
		for _, line := range script {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return
			}
		}
		<-ctx.Done()
	}()
	return &followReader{PipeReader: r, cancel: cancel}, nil
}

type followReader struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (r *followReader) Close() error {
	r.cancel()
	return r.PipeReader.Close()
}

func (f *FakeRuntime) detach(service string, w *io.PipeWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws := f.followers[service]
	for i := range ws {
		if ws[i] == w {
			f.followers[service] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

// Push implements FilePusher.
func (f *FakeRuntime) Push(_ context.Context, path string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(FakeCall{Op: "push", Service: path}); err != nil {
		return err
	}
	f.files[path] = append([]byte(nil), content...)
	return nil
}
