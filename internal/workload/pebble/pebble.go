// Package pebble adapts the Pebble service manager to the workload runtime
// interface.
package pebble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/canonical/pebble/client"
	"github.com/trly/nfops/internal/log"
	"github.com/trly/nfops/internal/workload"
	"gopkg.in/yaml.v3"
)

// SocketName is the Pebble API socket inside each container directory.
const SocketName = "pebble.socket"

// Client is the subset of the Pebble client used by Runtime.
type Client interface {
	AddLayer(opts *client.AddLayerOptions) error
	Start(opts *client.ServiceOptions) (changeID string, err error)
	Stop(opts *client.ServiceOptions) (changeID string, err error)
	WaitChange(id string, opts *client.WaitChangeOptions) (*client.Change, error)
	Services(opts *client.ServicesOptions) ([]*client.ServiceInfo, error)
	FollowLogs(ctx context.Context, opts *client.LogsOptions) error
	Logs(opts *client.LogsOptions) error
	Push(opts *client.PushOptions) error
}

// Runtime drives the services of one container through its Pebble API.
type Runtime struct {
	client Client
	logger log.Logger
}

var _ workload.Runtime = (*Runtime)(nil)
var _ workload.FilePusher = (*Runtime)(nil)

// NewRuntime creates a runtime over a Pebble client.
func NewRuntime(c Client, logger log.Logger) *Runtime {
	return &Runtime{client: c, logger: logger}
}

// NewFactory returns a factory connecting to <socketDir>/<container>/pebble.socket.
func NewFactory(socketDir string, logger log.Logger) workload.Factory {
	return workload.FactoryFunc(func(container string) (workload.Runtime, error) {
		socket := filepath.Join(socketDir, container, SocketName)
		c, err := client.New(&client.Config{Socket: socket})
		if err != nil {
			return nil, fmt.Errorf("failed to create pebble client for %s: %w", container, err)
		}
		logger.Debug("Created pebble client", "container", container, "socket", socket)
		return NewRuntime(c, logger.With("container", container)), nil
	})
}

type layer struct {
	Summary  string                  `yaml:"summary"`
	Services map[string]layerService `yaml:"services"`
}

type layerService struct {
	Override    string            `yaml:"override"`
	Summary     string            `yaml:"summary,omitempty"`
	Command     string            `yaml:"command,omitempty"`
	Startup     string            `yaml:"startup,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// RenderLayer renders a single-service Pebble layer.
func RenderLayer(label string, override workload.Override, spec workload.ServiceSpec) ([]byte, error) {
	return yaml.Marshal(layer{
		Summary: label + " layer",
		Services: map[string]layerService{
			spec.Name: {
				Override:    string(override),
				Summary:     spec.Summary,
				Command:     spec.Command,
				Startup:     spec.Startup,
				Environment: spec.Environment,
			},
		},
	})
}

// ApplyLayer adds or combines the layer and lets Pebble replan.
func (r *Runtime) ApplyLayer(_ context.Context, label string, override workload.Override, spec workload.ServiceSpec) error {
	data, err := RenderLayer(label, override, spec)
	if err != nil {
		return fmt.Errorf("failed to render layer %s: %w", label, err)
	}
	err = r.client.AddLayer(&client.AddLayerOptions{
		Combine:   true,
		Label:     label,
		LayerData: data,
	})
	return classify("apply layer", spec.Name, err)
}

// Start starts the service and waits for the change to finish.
func (r *Runtime) Start(_ context.Context, service string) error {
	id, err := r.client.Start(&client.ServiceOptions{Names: []string{service}})
	if err != nil {
		return classify("start", service, err)
	}
	return r.wait("start", service, id)
}

// Stop stops the service and waits for the change to finish.
func (r *Runtime) Stop(_ context.Context, service string) error {
	id, err := r.client.Stop(&client.ServiceOptions{Names: []string{service}})
	if err != nil {
		return classify("stop", service, err)
	}
	return r.wait("stop", service, id)
}

func (r *Runtime) wait(op, service, id string) error {
	change, err := r.client.WaitChange(id, &client.WaitChangeOptions{})
	if err != nil {
		return classify(op, service, err)
	}
	if change.Err != "" {
		return workload.NewServiceError(op, service, errors.New(change.Err))
	}
	r.logger.Debug("Change finished", "op", op, "service", service, "change", id)
	return nil
}

// ServiceStatus reports whether the service is in the plan and active.
func (r *Runtime) ServiceStatus(_ context.Context, service string) (workload.Status, error) {
	infos, err := r.client.Services(&client.ServicesOptions{Names: []string{service}})
	if err != nil {
		return workload.Status{}, classify("status", service, err)
	}
	for _, info := range infos {
		if info.Name == service {
			return workload.Status{Exists: true, Running: info.Current == client.StatusActive}, nil
		}
	}
	return workload.Status{}, nil
}

// StreamLogs returns the service log messages, one per line.
func (r *Runtime) StreamLogs(ctx context.Context, service string, follow bool) (io.ReadCloser, error) {
	if !follow {
		var buf bytes.Buffer
		err := r.client.Logs(&client.LogsOptions{
			Services: []string{service},
			WriteLog: func(e client.LogEntry) error { return writeEntry(&buf, e) },
		})
		if err != nil {
			return nil, classify("logs", service, err)
		}
		return io.NopCloser(&buf), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	go func() {
		err := r.client.FollowLogs(ctx, &client.LogsOptions{
			Services: []string{service},
			WriteLog: func(e client.LogEntry) error { return writeEntry(pw, e) },
		})
		if err != nil && ctx.Err() == nil {
			_ = pw.CloseWithError(classify("logs", service, err))
			return
		}
		_ = pw.Close()
	}()
	return &logStream{PipeReader: pr, cancel: cancel}, nil
}

func writeEntry(w io.Writer, e client.LogEntry) error {
	_, err := fmt.Fprintln(w, e.Message)
	return err
}

type logStream struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (s *logStream) Close() error {
	s.cancel()
	return s.PipeReader.Close()
}

// Push writes a file into the container, creating parent directories.
func (r *Runtime) Push(_ context.Context, path string, content []byte) error {
	err := r.client.Push(&client.PushOptions{
		Source:   bytes.NewReader(content),
		Path:     path,
		MakeDirs: true,
	})
	return classify("push", path, err)
}

// classify maps Pebble errors onto the workload error taxonomy.
func classify(op, service string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return workload.NewRuntimeUnavailableError(op, service, err)
	}
	return workload.NewServiceError(op, service, err)
}

func isConnectionError(err error) bool {
	var ce client.ConnectionError
	if errors.As(err, &ce) {
		return true
	}
	var pce *client.ConnectionError
	return errors.As(err, &pce)
}
