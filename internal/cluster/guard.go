package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/log"
	"github.com/trly/nfops/internal/retry"
)

// MarkerStore persists which one-time operations have completed.
type MarkerStore interface {
	Done(unit, operation string) bool
	Mark(unit, operation string) error
}

// Guard runs operations at most once per unit, retrying failures with a
// fixed backoff.
type Guard struct {
	markers MarkerStore
	policy  retry.Policy
	logger  log.Logger
	// OnRetry is called after every failed attempt. It may be nil.
	OnRetry func(unit, operation string, attempt int, err error)
}

// NewGuard creates a Guard.
func NewGuard(markers MarkerStore, policy retry.Policy, logger log.Logger) *Guard {
	return &Guard{markers: markers, policy: policy, logger: logger}
}

// Once runs fn unless its marker is already set, and sets the marker when fn
// succeeds. ran reports whether fn was invoked. A PermissionDeniedError stops
// retrying at once; running out of attempts yields an ExhaustedError.
func (g *Guard) Once(ctx context.Context, unit, operation string, fn func(context.Context) error) (ran bool, err error) {
	if g.markers.Done(unit, operation) {
		g.logger.Debug("One-time operation already done", "unit", unit, "operation", operation)
		return false, nil
	}

	notify := func(err error, attempt int) {
		g.logger.Warn("One-time operation failed", "unit", unit, "operation", operation, "attempt", attempt, "error", err)
		if g.OnRetry != nil {
			g.OnRetry(unit, operation, attempt, err)
		}
	}

	err = g.policy.Do(ctx, fn, IsPermissionDenied, notify)
	switch {
	case err == nil:
	case retry.IsExhausted(err):
		return true, &ExhaustedError{Unit: unit, Operation: operation, Attempts: g.policy.Attempts, Cause: retry.LastError(err)}
	case retry.IsStopped(err):
		return true, errors.Join(ctx.Err(), retry.LastError(err))
	default:
		return true, err
	}

	if err := g.markers.Mark(unit, operation); err != nil {
		return true, fmt.Errorf("failed to record %s for %s: %w", operation, unit, err)
	}
	g.logger.Info("One-time operation completed", "unit", unit, "operation", operation)
	return true, nil
}

// Installer runs the per-unit install adjustments.
type Installer struct {
	client *Client
	guard  *Guard
}

// NewInstaller creates an Installer.
func NewInstaller(client *Client, guard *Guard) *Installer {
	return &Installer{client: client, guard: guard}
}

// Prepare verifies access, then elevates privilege and patches ports as the
// descriptor asks. Each step runs at most once per unit lifetime.
func (i *Installer) Prepare(ctx context.Context, d *descriptor.Descriptor) error {
	if _, err := i.guard.Once(ctx, d.Name, OpCheckAccess, i.client.CheckAccess); err != nil {
		return err
	}
	if d.Privileged {
		_, err := i.guard.Once(ctx, d.Name, OpElevatePrivilege, func(ctx context.Context) error {
			return i.client.ElevatePrivilege(ctx, d.Name, d.Container)
		})
		if err != nil {
			return err
		}
	}
	if len(d.Ports) > 0 {
		_, err := i.guard.Once(ctx, d.Name, OpPatchPorts, func(ctx context.Context) error {
			return i.client.PatchServicePorts(ctx, d.Name, d.Ports)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
