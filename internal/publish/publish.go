// Package publish writes a unit's readiness data into the channels it
// provides.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/leadership"
	"github.com/trly/nfops/internal/log"
	"github.com/trly/nfops/internal/relation"
	"github.com/trly/nfops/internal/validate"
)

// Skip reasons. A skipped publish is not a failure.
var (
	ErrNotLeader  = errors.New("not the leader")
	ErrNotRunning = errors.New("workload is not running")
)

// RunningChecker reports whether the unit's workload is running.
type RunningChecker interface {
	IsRunning(ctx context.Context) (bool, error)
}

// Publisher writes provider-side data.
type Publisher struct {
	store  relation.Store
	logger log.Logger
}

// New creates a publisher over store.
func New(store relation.Store, logger log.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

// Publish writes d's advertised data into every joined channel it provides
// and returns the channel IDs written. Leadership and the running state are
// queried on every call. Writes are idempotent.
func (p *Publisher) Publish(ctx context.Context, d *descriptor.Descriptor, address string, leader leadership.Checker, wl RunningChecker) ([]string, error) {
	isLeader, err := leader.IsLeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check leadership: %w", err)
	}
	if !isLeader {
		return nil, fmt.Errorf("skipping publish for %s: %w", d.Name, ErrNotLeader)
	}

	running, err := wl.IsRunning(ctx)
	if err != nil {
		return nil, err
	}
	if !running {
		return nil, fmt.Errorf("skipping publish for %s: %w", d.Name, ErrNotRunning)
	}

	var written []string
	for _, prov := range d.Provides {
		chs, err := relation.Provided(ctx, p.store, prov.Channel, d.Name)
		if err != nil {
			return written, fmt.Errorf("failed to list %s channels: %w", prov.Channel, err)
		}
		data := prov.PublishedData(address)
		for _, ch := range chs {
			if err := p.store.Write(ctx, ch.ID(), relation.SideProvider, data); err != nil {
				if errors.Is(err, relation.ErrChannelNotFound) {
					p.logger.Debug("Channel broke before publish", "channel", ch.ID())
					continue
				}
				return written, fmt.Errorf("failed to publish to %s: %w", ch.ID(), err)
			}
			p.logger.Debug("Published readiness data", "channel", ch.ID(), "data", validate.RedactMap(data))
			written = append(written, ch.ID())
		}
	}
	return written, nil
}

// IsSkipped reports whether err is a skip reason rather than a failure.
func IsSkipped(err error) bool {
	return errors.Is(err, ErrNotLeader) || errors.Is(err, ErrNotRunning)
}
