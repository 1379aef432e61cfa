package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/log"
)

// Controller manages one service of one unit.
type Controller struct {
	runtime Runtime
	label   string
	service string
	summary string
	logger  log.Logger

	mu       sync.Mutex
	lastHash string
}

// NewController creates a controller applying layers under label for service.
func NewController(runtime Runtime, label, service, summary string, logger log.Logger) *Controller {
	return &Controller{
		runtime: runtime,
		label:   label,
		service: service,
		summary: summary,
		logger:  logger.With("service", service),
	}
}

// Service returns the managed service name.
func (c *Controller) Service() string {
	return c.service
}

// ApplyBase replaces the service definition with the base configuration.
func (c *Controller) ApplyBase(ctx context.Context, snap Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("Applying base layer", "label", c.label)
	if err := c.runtime.ApplyLayer(ctx, c.label, OverrideReplace, c.spec(snap)); err != nil {
		return err
	}
	c.lastHash = snap.Hash()
	return nil
}

// Configure merges snap into the service definition. Applying the same
// snapshot again does not reach the runtime. changed reports whether a layer
// was applied.
func (c *Controller) Configure(ctx context.Context, snap Snapshot) (changed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := snap.Hash()
	if hash == c.lastHash {
		c.logger.Debug("Configuration unchanged, skipping layer")
		return false, nil
	}

	c.logger.Debug("Applying configuration layer", "label", c.label, "hash", hash[:12])
	if err := c.runtime.ApplyLayer(ctx, c.label, OverrideMerge, c.spec(snap)); err != nil {
		return false, err
	}
	c.lastHash = hash
	return true, nil
}

// Applied reports whether snap is the configuration last applied.
func (c *Controller) Applied(snap Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHash != "" && c.lastHash == snap.Hash()
}

// Start starts the service unless it is already running.
func (c *Controller) Start(ctx context.Context) error {
	st, err := c.runtime.ServiceStatus(ctx, c.service)
	if err != nil {
		return err
	}
	if st.Running {
		return nil
	}
	if !st.Exists {
		return NewServiceError("start", c.service, errors.New("service is not defined"))
	}
	c.logger.Info("Starting service")
	return c.runtime.Start(ctx, c.service)
}

// Stop stops the service if it is running.
func (c *Controller) Stop(ctx context.Context) error {
	st, err := c.runtime.ServiceStatus(ctx, c.service)
	if err != nil {
		return err
	}
	if !st.Running {
		return nil
	}
	c.logger.Info("Stopping service")
	return c.runtime.Stop(ctx, c.service)
}

// Restart stops and starts the service.
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	return c.Start(ctx)
}

// Exists reports whether the service is defined.
func (c *Controller) Exists(ctx context.Context) (bool, error) {
	st, err := c.runtime.ServiceStatus(ctx, c.service)
	if err != nil {
		return false, err
	}
	return st.Exists, nil
}

// IsRunning reports whether the service is running.
func (c *Controller) IsRunning(ctx context.Context) (bool, error) {
	st, err := c.runtime.ServiceStatus(ctx, c.service)
	if err != nil {
		return false, err
	}
	return st.Running, nil
}

// Logs opens the service output.
func (c *Controller) Logs(ctx context.Context, follow bool) (io.ReadCloser, error) {
	return c.runtime.StreamLogs(ctx, c.service, follow)
}

// Push places files into the workload when the runtime supports it.
func (c *Controller) Push(ctx context.Context, files []descriptor.InitFile) error {
	if len(files) == 0 {
		return nil
	}
	pusher, ok := c.runtime.(FilePusher)
	if !ok {
		c.logger.Warn("Runtime cannot push files, skipping", "count", len(files))
		return nil
	}
	for _, f := range files {
		if err := pusher.Push(ctx, f.Path, []byte(f.Content)); err != nil {
			return fmt.Errorf("failed to push %s: %w", f.Path, err)
		}
	}
	return nil
}

func (c *Controller) spec(snap Snapshot) ServiceSpec {
	return ServiceSpec{
		Name:        c.service,
		Summary:     c.summary,
		Command:     snap.Command,
		Startup:     StartupEnabled,
		Environment: snap.Environment,
	}
}
