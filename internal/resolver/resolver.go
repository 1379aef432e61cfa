// Package resolver decides whether a unit's upstream channels carry all the
// data it needs.
package resolver

import (
	"context"
	"fmt"

	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/relation"
)

// Result is the outcome of one resolution.
type Result struct {
	AllSatisfied  bool
	PerDependency map[string]bool
	// Values holds the provider data of each satisfied channel.
	Values map[string]map[string]string
	// Missing lists, per unsatisfied channel, the keys that are absent,
	// empty or not equal to their constraint.
	Missing map[string][]string
}

// Unsatisfied returns the unsatisfied channel names in requirement order.
func (r Result) Unsatisfied(reqs []descriptor.Requirement) []string {
	var out []string
	for _, req := range reqs {
		if !r.PerDependency[req.Channel] {
			out = append(out, req.Channel)
		}
	}
	return out
}

// Resolver reads upstream channels from a relation store.
type Resolver struct {
	store relation.Store
}

// New creates a resolver over store.
func New(store relation.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve evaluates every requirement of unit. A channel that was never
// joined reads the same as a joined channel with no data.
func (r *Resolver) Resolve(ctx context.Context, unit string, reqs []descriptor.Requirement) (Result, error) {
	res := Result{
		AllSatisfied:  true,
		PerDependency: make(map[string]bool, len(reqs)),
		Values:        make(map[string]map[string]string),
		Missing:       make(map[string][]string),
	}

	for _, req := range reqs {
		data, err := r.read(ctx, unit, req.Channel)
		if err != nil {
			return Result{}, err
		}

		missing := Check(req, data)
		ok := len(missing) == 0
		res.PerDependency[req.Channel] = ok
		if ok {
			res.Values[req.Channel] = data
		} else {
			res.Missing[req.Channel] = missing
			res.AllSatisfied = false
		}
	}
	return res, nil
}

func (r *Resolver) read(ctx context.Context, unit, endpoint string) (map[string]string, error) {
	ch, ok, err := relation.Consumed(ctx, r.store, endpoint, unit)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s channel of %s: %w", endpoint, unit, err)
	}
	if !ok {
		return map[string]string{}, nil
	}
	data, err := r.store.Read(ctx, ch.ID(), relation.SideProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel %s: %w", ch.ID(), err)
	}
	return data, nil
}

// Check returns the required keys of req that data does not satisfy.
func Check(req descriptor.Requirement, data map[string]string) []string {
	var missing []string
	for _, key := range req.Keys {
		v := data[key]
		if v == "" {
			missing = append(missing, key)
			continue
		}
		if want, ok := req.Equals[key]; ok && v != want {
			missing = append(missing, key)
		}
	}
	return missing
}
