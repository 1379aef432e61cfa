package relation

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/juju/clock"
	"github.com/trly/nfops/internal/log"
)

// ChangeKind classifies a channel change.
type ChangeKind int

const (
	// Joined means the channel appeared.
	Joined ChangeKind = iota
	// Changed means either side's data changed.
	Changed
	// Broken means the channel was removed.
	Broken
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case Joined:
		return "joined"
	case Changed:
		return "changed"
	case Broken:
		return "broken"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// Change is one observed channel transition.
type Change struct {
	Kind    ChangeKind
	Channel Channel
}

type observed struct {
	ch       Channel
	provider map[string]string
	consumer map[string]string
}

// Watcher turns store contents into join, change and break notifications by
// polling.
type Watcher struct {
	store    Store
	interval time.Duration
	clock    clock.Clock
	logger   log.Logger
	last     map[string]observed
}

// NewWatcher creates a watcher polling store every interval.
func NewWatcher(store Store, interval time.Duration, clk clock.Clock, logger log.Logger) *Watcher {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Watcher{
		store:    store,
		interval: interval,
		clock:    clk,
		logger:   logger,
		last:     make(map[string]observed),
	}
}

// Poll compares the store with the previous poll and returns the changes in
// channel ID order, breaks last.
func (w *Watcher) Poll(ctx context.Context) ([]Change, error) {
	chs, err := w.store.Channels(ctx)
	if err != nil {
		return nil, err
	}

	current := make(map[string]observed, len(chs))
	var changes []Change
	for _, ch := range chs {
		p, err := w.store.Read(ctx, ch.ID(), SideProvider)
		if err != nil {
			return nil, err
		}
		c, err := w.store.Read(ctx, ch.ID(), SideConsumer)
		if err != nil {
			return nil, err
		}
		now := observed{ch: ch, provider: p, consumer: c}
		current[ch.ID()] = now

		prev, ok := w.last[ch.ID()]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: Joined, Channel: ch})
		case !maps.Equal(prev.provider, p) || !maps.Equal(prev.consumer, c):
			changes = append(changes, Change{Kind: Changed, Channel: ch})
		}
	}

	var broken []Channel
	for id, prev := range w.last {
		if _, ok := current[id]; !ok {
			broken = append(broken, prev.ch)
		}
	}
	sortChannels(broken)
	for _, ch := range broken {
		changes = append(changes, Change{Kind: Broken, Channel: ch})
	}

	w.last = current
	return changes, nil
}

// Run polls until ctx is done, sending every change to out.
func (w *Watcher) Run(ctx context.Context, out chan<- Change) error {
	for {
		changes, err := w.Poll(ctx)
		if err != nil {
			w.logger.Warn("Failed to poll relation store", "error", err)
		}
		for _, c := range changes {
			w.logger.Debug("Relation change", "kind", c.Kind, "channel", c.Channel.ID())
			select {
			case out <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(w.interval):
		}
	}
}
