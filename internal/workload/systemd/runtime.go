package systemd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/trly/nfops/internal/execx"
	"github.com/trly/nfops/internal/log"
	"github.com/trly/nfops/internal/validate"
	"github.com/trly/nfops/internal/workload"
)

// Options configures a systemd Runtime.
type Options struct {
	// UnitDir holds the service units; drop-ins are written beneath it.
	UnitDir string
	// RootDir is the workload filesystem root used for pushed files.
	RootDir  string
	UserMode bool
}

// Runtime drives host services through systemd.
type Runtime struct {
	factory ConnectionFactory
	runner  execx.Runner
	opts    Options
	logger  log.Logger
}

var _ workload.Runtime = (*Runtime)(nil)
var _ workload.FilePusher = (*Runtime)(nil)

// NewRuntime creates a systemd runtime.
func NewRuntime(factory ConnectionFactory, runner execx.Runner, opts Options, logger log.Logger) *Runtime {
	if opts.RootDir == "" {
		opts.RootDir = "/"
	}
	return &Runtime{factory: factory, runner: runner, opts: opts, logger: logger}
}

// Factory returns a workload factory serving every container from r.
func (r *Runtime) Factory() workload.Factory {
	return workload.FactoryFunc(func(string) (workload.Runtime, error) { return r, nil })
}

func (r *Runtime) connect(ctx context.Context, op, service string) (Connection, error) {
	conn, err := r.factory.NewConnection(ctx, r.opts.UserMode)
	if err != nil {
		return nil, workload.NewRuntimeUnavailableError(op, service, err)
	}
	return conn, nil
}

// ApplyLayer writes the service drop-in and reloads systemd.
func (r *Runtime) ApplyLayer(ctx context.Context, label string, override workload.Override, spec workload.ServiceSpec) error {
	conn, err := r.connect(ctx, "apply layer", spec.Name)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	current, _, err := loadDropIn(r.opts.UnitDir, spec.Name)
	if err != nil {
		return workload.NewServiceError("apply layer", spec.Name, err)
	}
	next := current.merge(override, spec)
	if err := writeDropIn(r.opts.UnitDir, spec.Name, next); err != nil {
		return workload.NewServiceError("apply layer", spec.Name, err)
	}

	r.logger.Debug("Wrote service drop-in", "service", spec.Name, "label", label, "override", override)
	if err := conn.Reload(ctx); err != nil {
		return workload.NewRuntimeUnavailableError("reload", spec.Name, err)
	}
	return nil
}

// Start starts the service and waits for the job result.
func (r *Runtime) Start(ctx context.Context, service string) error {
	conn, err := r.connect(ctx, "start", service)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.StartUnit(ctx, service+".service", "replace")
	if err != nil {
		return workload.NewServiceError("start", service, err)
	}
	return r.waitJob(ctx, "start", service, ch)
}

// Stop stops the service and waits for the job result.
func (r *Runtime) Stop(ctx context.Context, service string) error {
	conn, err := r.connect(ctx, "stop", service)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.StopUnit(ctx, service+".service", "replace")
	if err != nil {
		return workload.NewServiceError("stop", service, err)
	}
	return r.waitJob(ctx, "stop", service, ch)
}

func (r *Runtime) waitJob(ctx context.Context, op, service string, ch chan string) error {
	select {
	case result := <-ch:
		if result != "done" {
			return workload.NewServiceError(op, service, fmt.Errorf("job result %s", result))
		}
		r.logger.Debug("Systemd job finished", "op", op, "service", service)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s operation cancelled: %w", op, ctx.Err())
	}
}

// ServiceStatus reads LoadState and ActiveState of the service unit.
func (r *Runtime) ServiceStatus(ctx context.Context, service string) (workload.Status, error) {
	conn, err := r.connect(ctx, "status", service)
	if err != nil {
		return workload.Status{}, err
	}
	defer func() { _ = conn.Close() }()

	props, err := conn.GetUnitProperties(ctx, service+".service")
	if err != nil {
		return workload.Status{}, workload.NewRuntimeUnavailableError("status", service, err)
	}

	loadState, _ := props["LoadState"].(string)
	activeState, _ := props["ActiveState"].(string)
	if loadState == "" || loadState == "not-found" {
		return workload.Status{}, nil
	}
	return workload.Status{Exists: true, Running: activeState == "active"}, nil
}

// StreamLogs reads the service journal with journalctl.
func (r *Runtime) StreamLogs(ctx context.Context, service string, follow bool) (io.ReadCloser, error) {
	if err := validate.ServiceName(service); err != nil {
		return nil, workload.NewServiceError("logs", service, err)
	}
	args := r.journalArgs(service, follow)
	if follow {
		rc, err := r.runner.Stream(ctx, "journalctl", args...)
		if err != nil {
			return nil, workload.NewRuntimeUnavailableError("logs", service, err)
		}
		return rc, nil
	}

	out, err := r.runner.CombinedOutput(ctx, "journalctl", args...)
	if err != nil {
		return nil, workload.NewServiceError("logs", service, fmt.Errorf("%w: %s", err, bytes.TrimSpace(out)))
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}

func (r *Runtime) journalArgs(service string, follow bool) []string {
	var args []string
	if r.opts.UserMode {
		args = append(args, "--user")
	}
	if follow {
		args = append(args, "--follow", "--lines=0")
	} else {
		args = append(args, "--no-pager", "--lines=100")
	}
	return append(args, "--output=cat", "--unit", service+".service")
}

// Push writes a file below RootDir.
func (r *Runtime) Push(_ context.Context, path string, content []byte) error {
	if !filepath.IsAbs(path) {
		return workload.NewServiceError("push", path, errors.New("path must be absolute"))
	}
	target, err := validate.PathWithinBase(path, r.opts.RootDir)
	if err != nil {
		return workload.NewServiceError("push", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return workload.NewServiceError("push", path, err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil { //nolint:gosec // init scripts are read by the workload user
		return workload.NewServiceError("push", path, err)
	}
	r.logger.Debug("Pushed file", "path", target)
	return nil
}
