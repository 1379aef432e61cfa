package descriptor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the set of known unit descriptors.
type Catalog struct {
	order []string
	byKey map[string]*Descriptor
}

// NewCatalog builds a catalog from descriptors. Later entries replace
// earlier ones with the same name.
func NewCatalog(ds ...*Descriptor) *Catalog {
	c := &Catalog{byKey: make(map[string]*Descriptor)}
	for _, d := range ds {
		c.put(d)
	}
	return c
}

// BuiltinCatalog returns a catalog holding the built-in descriptors.
func BuiltinCatalog() *Catalog {
	return NewCatalog(Builtin()...)
}

func (c *Catalog) put(d *Descriptor) {
	if _, ok := c.byKey[d.Name]; !ok {
		c.order = append(c.order, d.Name)
	}
	c.byKey[d.Name] = d
}

// Get returns the descriptor for the named unit.
func (c *Catalog) Get(name string) (*Descriptor, bool) {
	d, ok := c.byKey[name]
	return d, ok
}

// Names returns unit names in insertion order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// All returns descriptors in insertion order.
func (c *Catalog) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.byKey[n])
	}
	return out
}

// Providers returns the units providing the named channel, sorted.
func (c *Catalog) Providers(channel string) []string {
	var out []string
	for _, d := range c.byKey {
		if _, ok := d.Provision(channel); ok {
			out = append(out, d.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Validate validates every descriptor and checks that every required
// channel has exactly one provider.
func (c *Catalog) Validate() error {
	var errs []error
	for _, d := range c.All() {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
		}
		for i, req := range d.Requires {
			providers := c.Providers(req.Channel)
			field := fmt.Sprintf("requires[%d]", i)
			switch len(providers) {
			case 0:
				errs = append(errs, invalid(d.Name, field, "no unit provides channel %q", req.Channel))
			case 1:
				if providers[0] == d.Name {
					errs = append(errs, invalid(d.Name, field, "unit requires its own channel %q", req.Channel))
				}
			default:
				errs = append(errs, invalid(d.Name, field, "channel %q has several providers: %s", req.Channel, strings.Join(providers, ", ")))
			}
		}
	}
	return errors.Join(errs...)
}

// LoadDir returns the built-in catalog overlaid with every *.yaml file in
// dir. A file naming a built-in unit overrides only the fields it sets; a
// file naming a new unit adds it. A missing dir yields the built-ins. The
// result is validated.
func LoadDir(dir string) (*Catalog, error) {
	c := BuiltinCatalog()

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read descriptor directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor %s: %w", path, err)
		}
		if err := c.overlay(data); err != nil {
			return nil, fmt.Errorf("failed to load descriptor %s: %w", path, err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) overlay(data []byte) error {
	var head struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return &InvalidError{Unit: "", Field: "yaml", Reason: err.Error()}
	}
	if head.Name == "" {
		return invalid("", "name", "must not be empty")
	}

	d := &Descriptor{}
	if existing, ok := c.Get(head.Name); ok {
		d = existing.Clone()
	}
	if err := yaml.Unmarshal(data, d); err != nil {
		return &InvalidError{Unit: head.Name, Field: "yaml", Reason: err.Error()}
	}
	c.put(d)
	return nil
}

// Marshal renders a descriptor as YAML.
func Marshal(d *Descriptor) ([]byte, error) {
	return yaml.Marshal(d)
}
