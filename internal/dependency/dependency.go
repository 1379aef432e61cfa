// Package dependency models the deployment topology between units: which
// unit provides each channel another unit consumes.
package dependency

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/trly/nfops/internal/descriptor"
)

// Link is one provider -> consumer edge carried over a named channel.
type Link struct {
	Provider string
	Consumer string
	Channel  string
}

// Topology is a directed acyclic graph of units. Edge direction:
// provider -> consumer (i.e., A -> B means B depends on A).
type Topology struct {
	g     graph.Graph[string, string]
	links []Link
}

// NewTopology creates an empty topology.
func NewTopology() *Topology {
	return &Topology{
		g: graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
	}
}

// AddUnit ensures a unit exists in the graph.
func (t *Topology) AddUnit(name string) error {
	if name == "" {
		return fmt.Errorf("unit name cannot be empty")
	}
	if err := t.g.AddVertex(name); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return fmt.Errorf("failed to add unit %s: %w", name, err)
	}
	return nil
}

// AddLink records that consumer depends on provider through channel.
func (t *Topology) AddLink(l Link) error {
	if l.Provider == l.Consumer {
		return fmt.Errorf("self-dependency is not allowed: %s", l.Consumer)
	}
	if err := t.AddUnit(l.Provider); err != nil {
		return err
	}
	if err := t.AddUnit(l.Consumer); err != nil {
		return err
	}

	err := t.g.AddEdge(l.Provider, l.Consumer, graph.EdgeData(l.Channel))
	switch {
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return &descriptor.InvalidError{
			Unit:   l.Consumer,
			Field:  "requires",
			Reason: fmt.Sprintf("channel %q from %s creates a dependency cycle", l.Channel, l.Provider),
		}
	case err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists):
		return fmt.Errorf("failed to link %s -> %s: %w", l.Provider, l.Consumer, err)
	}

	t.links = append(t.links, l)
	return nil
}

// Build derives the topology from a catalog: every required channel links
// the consumer to the unit that provides it.
func Build(c *descriptor.Catalog) (*Topology, error) {
	t := NewTopology()
	for _, d := range c.All() {
		if err := t.AddUnit(d.Name); err != nil {
			return nil, err
		}
	}
	for _, d := range c.All() {
		for _, req := range d.Requires {
			providers := c.Providers(req.Channel)
			if len(providers) != 1 {
				return nil, &descriptor.InvalidError{
					Unit:   d.Name,
					Field:  "requires",
					Reason: fmt.Sprintf("channel %q needs exactly one provider, found %d", req.Channel, len(providers)),
				}
			}
			if err := t.AddLink(Link{Provider: providers[0], Consumer: d.Name, Channel: req.Channel}); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// Order returns units in topological order (providers first), with
// lexical tie-breaking.
func (t *Topology) Order() ([]string, error) {
	order, err := graph.StableTopologicalSort(t.g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("failed to order units: %w", err)
	}
	return order, nil
}

// Dependencies returns the units the given unit depends on.
func (t *Topology) Dependencies(unit string) ([]string, error) {
	preds, err := t.g.PredecessorMap()
	if err != nil {
		return nil, err
	}
	p, ok := preds[unit]
	if !ok {
		return nil, fmt.Errorf("unknown unit: %s", unit)
	}
	return sortedKeys(p), nil
}

// Dependents returns the units that depend on the given unit.
func (t *Topology) Dependents(unit string) ([]string, error) {
	adj, err := t.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	s, ok := adj[unit]
	if !ok {
		return nil, fmt.Errorf("unknown unit: %s", unit)
	}
	return sortedKeys(s), nil
}

// Links returns every link in insertion order.
func (t *Topology) Links() []Link {
	return append([]Link(nil), t.links...)
}

// ConsumedBy returns the links a unit consumes.
func (t *Topology) ConsumedBy(unit string) []Link {
	var out []Link
	for _, l := range t.links {
		if l.Consumer == unit {
			out = append(out, l)
		}
	}
	return out
}

// ProvidedBy returns the links a unit provides.
func (t *Topology) ProvidedBy(unit string) []Link {
	var out []Link
	for _, l := range t.links {
		if l.Provider == unit {
			out = append(out, l)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
