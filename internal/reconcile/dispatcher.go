package reconcile

import (
	"context"
	"sync"

	"github.com/im7mortal/kmutex"
	"github.com/trly/nfops/internal/log"
)

// Dispatcher delivers events concurrently while never running two passes
// of the same unit at once.
type Dispatcher struct {
	r      *Reconciler
	locks  *kmutex.Kmutex
	logger log.Logger
}

// NewDispatcher creates a Dispatcher over r.
func NewDispatcher(r *Reconciler, logger log.Logger) *Dispatcher {
	return &Dispatcher{r: r, locks: kmutex.New(), logger: logger}
}

// Dispatch handles ev once the unit's lock is free.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Result {
	d.locks.Lock(ev.Unit)
	defer d.locks.Unlock(ev.Unit)
	return d.r.Handle(ctx, ev)
}

// Redeliver sends RuntimeReachable to every unit with deferred events.
func (d *Dispatcher) Redeliver(ctx context.Context) []Result {
	var out []Result
	for _, unit := range d.r.Queue().Units() {
		out = append(out, d.Dispatch(ctx, Event{Kind: RuntimeReachable, Unit: unit}))
	}
	return out
}

// Run dispatches events until the channel closes or ctx is done, then
// waits for in-flight passes. Results are sent to results when it is not
// nil.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event, results chan<- Result) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(ev Event) {
				defer wg.Done()
				res := d.Dispatch(ctx, ev)
				d.logger.Debug("Event handled", "event", ev.String(), "outcome", res.Outcome(), "status", res.Status.String())
				if results == nil {
					return
				}
				select {
				case results <- res:
				case <-ctx.Done():
				}
			}(ev)
		}
	}
}
