package reconcile

import "sync"

// DeferQueue holds events whose handling hit an unreachable runtime. It is
// safe for concurrent use.
type DeferQueue struct {
	mu     sync.Mutex
	events []Event
}

// NewDeferQueue creates an empty queue.
func NewDeferQueue() *DeferQueue {
	return &DeferQueue{}
}

// Push appends ev unless an equal event is already queued. It reports
// whether ev was added.
func (q *DeferQueue) Push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.events {
		if sameEvent(e, ev) {
			return false
		}
	}
	q.events = append(q.events, ev)
	return true
}

// Drain removes and returns the unit's events in the order they were
// queued.
func (q *DeferQueue) Drain(unit string) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out, keep []Event
	for _, e := range q.events {
		if e.Unit == unit {
			out = append(out, e)
		} else {
			keep = append(keep, e)
		}
	}
	q.events = keep
	return out
}

// Units returns the units with queued events, in first-queued order.
func (q *DeferQueue) Units() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range q.events {
		if !seen[e.Unit] {
			seen[e.Unit] = true
			out = append(out, e.Unit)
		}
	}
	return out
}

// Len returns the number of queued events.
func (q *DeferQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func sameEvent(a, b Event) bool {
	if a.Kind != b.Kind || a.Unit != b.Unit || a.Channel != b.Channel || a.Container != b.Container {
		return false
	}
	if a.Options == nil || b.Options == nil {
		return a.Options == b.Options
	}
	return *a.Options == *b.Options
}
