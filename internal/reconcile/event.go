package reconcile

import (
	"fmt"
	"strings"
)

// EventKind enumerates the triggers the loop reacts to.
type EventKind int

// Event kinds.
const (
	Install EventKind = iota + 1
	ConfigChanged
	WorkloadReady
	DependencyChanged
	DependencyBroken
	ProvidedJoined
	RuntimeReachable
	Resync
)

var eventNames = map[EventKind]string{
	Install:           "install",
	ConfigChanged:     "config-changed",
	WorkloadReady:     "workload-ready",
	DependencyChanged: "dependency-changed",
	DependencyBroken:  "dependency-broken",
	ProvidedJoined:    "provided-joined",
	RuntimeReachable:  "runtime-reachable",
	Resync:            "resync",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// EventKinds returns every known kind in declaration order.
func EventKinds() []EventKind {
	return []EventKind{Install, ConfigChanged, WorkloadReady, DependencyChanged, DependencyBroken, ProvidedJoined, RuntimeReachable, Resync}
}

// ParseEventKind parses the String form of a kind.
func ParseEventKind(s string) (EventKind, error) {
	for k, n := range eventNames {
		if n == strings.ToLower(s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Options are per-unit settings that may change with a ConfigChanged event.
type Options struct {
	Address      string
	StartTcpdump bool
}

// Event is one trigger for one unit.
type Event struct {
	Kind EventKind
	Unit string
	// Channel names the endpoint for relation events.
	Channel string
	// Container names the container for WorkloadReady. Empty means the
	// unit's main container.
	Container string
	// Options replaces the unit options on ConfigChanged when set.
	Options *Options
}

func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s", e.Unit, e.Kind)
	if e.Channel != "" {
		fmt.Fprintf(&b, "[%s]", e.Channel)
	}
	if e.Container != "" {
		fmt.Fprintf(&b, "@%s", e.Container)
	}
	return b.String()
}
