// Package descriptor defines the static, data-only description of each
// network-function unit: the channels it consumes and provides, its base
// command line and environment, exposed ports and activation signals.
package descriptor

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/trly/nfops/internal/validate"
)

// Tcpdump side-service identifiers.
const (
	TcpdumpContainer = "tcpdump"
	TcpdumpService   = "tcpdump"
)

// AddressVar is the placeholder replaced with the unit's own address in
// environment values and published data.
const AddressVar = "address"

// Descriptor describes one unit type.
type Descriptor struct {
	Name             string            `yaml:"name"`
	Container        string            `yaml:"container"`
	Service          string            `yaml:"service"`
	Summary          string            `yaml:"summary,omitempty"`
	Command          string            `yaml:"command"`
	Environment      map[string]string `yaml:"environment,omitempty"`
	Requires         []Requirement     `yaml:"requires,omitempty"`
	Provides         []Provision       `yaml:"provides,omitempty"`
	Ports            []Port            `yaml:"ports,omitempty"`
	Privileged       bool              `yaml:"privileged,omitempty"`
	Tcpdump          bool              `yaml:"tcpdump,omitempty"`
	ActivationTokens []string          `yaml:"activationTokens,omitempty"`
	// ActivationLine lists substrings that must appear together on one output
	// line. When set it replaces ActivationTokens.
	ActivationLine   []string          `yaml:"activationLine,omitempty"`
	InitFiles        []InitFile        `yaml:"initFiles,omitempty"`
}

// Requirement is an upstream channel the unit consumes.
type Requirement struct {
	Channel string   `yaml:"channel"`
	Keys    []string `yaml:"keys"`
	// Equals pins a key to an exact value, e.g. a ready flag.
	Equals map[string]string `yaml:"equals,omitempty"`
	// Env maps workload environment variables to templates over the
	// channel's keys, written as ${key}.
	Env map[string]string `yaml:"env,omitempty"`
}

// Provision is a channel the unit provides and the data it publishes.
type Provision struct {
	Channel string            `yaml:"channel"`
	Data    map[string]string `yaml:"data"`
}

// Port is an externally exposed network port.
type Port struct {
	Name       string `yaml:"name"`
	Port       int32  `yaml:"port"`
	TargetPort int32  `yaml:"targetPort,omitempty"`
	Protocol   string `yaml:"protocol"`
}

// InitFile is pushed into the workload before it first starts.
type InitFile struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// InvalidError reports a malformed descriptor.
type InvalidError struct {
	Unit   string
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid descriptor %q: %s: %s", e.Unit, e.Field, e.Reason)
}

// IsInvalid reports whether err contains an InvalidError.
func IsInvalid(err error) bool {
	var ie *InvalidError
	return errors.As(err, &ie)
}

func invalid(unit, field, format string, args ...any) error {
	return &InvalidError{Unit: unit, Field: field, Reason: fmt.Sprintf(format, args...)}
}

var validProtocols = []string{"TCP", "UDP", "SCTP"}

// Validate checks the descriptor for structural problems. All problems are
// reported together.
func (d *Descriptor) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		return invalid("", "name", "must not be empty")
	}
	if d.Container == "" {
		errs = append(errs, invalid(d.Name, "container", "must not be empty"))
	}
	if d.Service == "" {
		errs = append(errs, invalid(d.Name, "service", "must not be empty"))
	} else if err := validate.ServiceName(d.Service); err != nil {
		errs = append(errs, invalid(d.Name, "service", "%v", err))
	}
	if strings.TrimSpace(d.Command) == "" {
		errs = append(errs, invalid(d.Name, "command", "must not be empty"))
	}

	for _, key := range slices.Sorted(maps.Keys(d.Environment)) {
		if err := validate.EnvKey(key); err != nil {
			errs = append(errs, invalid(d.Name, "environment", "%v", err))
		}
	}

	seen := make(map[string]bool)
	for i, req := range d.Requires {
		field := fmt.Sprintf("requires[%d]", i)
		if req.Channel == "" {
			errs = append(errs, invalid(d.Name, field, "channel must not be empty"))
			continue
		}
		if seen[req.Channel] {
			errs = append(errs, invalid(d.Name, field, "duplicate channel %q", req.Channel))
		}
		seen[req.Channel] = true
		if len(req.Keys) == 0 {
			errs = append(errs, invalid(d.Name, field, "channel %q declares no required keys", req.Channel))
		}
		for key := range req.Equals {
			if !slices.Contains(req.Keys, key) {
				errs = append(errs, invalid(d.Name, field, "equals constraint on undeclared key %q", key))
			}
		}
		for env, tmpl := range req.Env {
			if err := validate.EnvKey(env); err != nil {
				errs = append(errs, invalid(d.Name, field, "%v", err))
			}
			for _, ref := range references(tmpl) {
				if !slices.Contains(req.Keys, ref) {
					errs = append(errs, invalid(d.Name, field, "env %s references undeclared key %q", env, ref))
				}
			}
		}
	}

	provided := make(map[string]bool)
	for i, p := range d.Provides {
		field := fmt.Sprintf("provides[%d]", i)
		if p.Channel == "" {
			errs = append(errs, invalid(d.Name, field, "channel must not be empty"))
			continue
		}
		if provided[p.Channel] {
			errs = append(errs, invalid(d.Name, field, "duplicate channel %q", p.Channel))
		}
		provided[p.Channel] = true
		if len(p.Data) == 0 {
			errs = append(errs, invalid(d.Name, field, "channel %q publishes no data", p.Channel))
		}
	}

	for i, port := range d.Ports {
		field := fmt.Sprintf("ports[%d]", i)
		if port.Name == "" {
			errs = append(errs, invalid(d.Name, field, "name must not be empty"))
		}
		if port.Port < 1 || port.Port > 65535 {
			errs = append(errs, invalid(d.Name, field, "port %d out of range", port.Port))
		}
		if port.TargetPort < 0 || port.TargetPort > 65535 {
			errs = append(errs, invalid(d.Name, field, "target port %d out of range", port.TargetPort))
		}
		if !slices.Contains(validProtocols, strings.ToUpper(port.Protocol)) {
			errs = append(errs, invalid(d.Name, field, "unsupported protocol %q", port.Protocol))
		}
	}

	for i, f := range d.InitFiles {
		field := fmt.Sprintf("initFiles[%d]", i)
		if !strings.HasPrefix(f.Path, "/") {
			errs = append(errs, invalid(d.Name, field, "path %q must be absolute", f.Path))
		} else if err := validate.Path(f.Path); err != nil {
			errs = append(errs, invalid(d.Name, field, "%v", err))
		}
	}

	for i, tok := range d.ActivationTokens {
		if tok == "" {
			errs = append(errs, invalid(d.Name, fmt.Sprintf("activationTokens[%d]", i), "must not be empty"))
		}
	}
	for i, sub := range d.ActivationLine {
		if sub == "" {
			errs = append(errs, invalid(d.Name, fmt.Sprintf("activationLine[%d]", i), "must not be empty"))
		}
	}

	return errors.Join(errs...)
}

// Requirement returns the requirement for the named channel.
func (d *Descriptor) Requirement(channel string) (Requirement, bool) {
	for _, r := range d.Requires {
		if r.Channel == channel {
			return r, true
		}
	}
	return Requirement{}, false
}

// Provision returns the provision for the named channel.
func (d *Descriptor) Provision(channel string) (Provision, bool) {
	for _, p := range d.Provides {
		if p.Channel == channel {
			return p, true
		}
	}
	return Provision{}, false
}

// BaseEnvironment returns the static environment with the unit address
// substituted.
func (d *Descriptor) BaseEnvironment(address string) map[string]string {
	env := make(map[string]string, len(d.Environment))
	for k, v := range d.Environment {
		env[k] = expand(v, map[string]string{AddressVar: address})
	}
	return env
}

// ResolvedEnvironment merges the static environment with values resolved from
// upstream channels. values is keyed by channel, then by key.
func (d *Descriptor) ResolvedEnvironment(address string, values map[string]map[string]string) map[string]string {
	env := d.BaseEnvironment(address)
	for _, req := range d.Requires {
		data := values[req.Channel]
		for name, tmpl := range req.Env {
			env[name] = expand(tmpl, data)
		}
	}
	return env
}

// PublishedData renders the data written into a provided channel.
func (p Provision) PublishedData(address string) map[string]string {
	out := make(map[string]string, len(p.Data))
	for k, v := range p.Data {
		out[k] = expand(v, map[string]string{AddressVar: address})
	}
	return out
}

// TcpdumpCommand returns the packet-capture command for the unit.
func (d *Descriptor) TcpdumpCommand() string {
	return fmt.Sprintf("/usr/sbin/tcpdump -i any -w /pcap_%s.pcap", d.Name)
}

// BlockedMessage renders a status message naming the unsatisfied channels.
func BlockedMessage(missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	if len(sorted) == 1 {
		return fmt.Sprintf("need %s relation", sorted[0])
	}
	return fmt.Sprintf("need %s and %s relations", strings.Join(sorted[:len(sorted)-1], ", "), sorted[len(sorted)-1])
}

// Clone returns a deep copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Environment = maps.Clone(d.Environment)
	c.Requires = nil
	for _, r := range d.Requires {
		c.Requires = append(c.Requires, Requirement{
			Channel: r.Channel,
			Keys:    slices.Clone(r.Keys),
			Equals:  maps.Clone(r.Equals),
			Env:     maps.Clone(r.Env),
		})
	}
	c.Provides = nil
	for _, p := range d.Provides {
		c.Provides = append(c.Provides, Provision{Channel: p.Channel, Data: maps.Clone(p.Data)})
	}
	c.Ports = slices.Clone(d.Ports)
	c.ActivationTokens = slices.Clone(d.ActivationTokens)
	c.ActivationLine = slices.Clone(d.ActivationLine)
	c.InitFiles = slices.Clone(d.InitFiles)
	return &c
}

// ActivationSignals returns the strings a started workload must print.
func (d *Descriptor) ActivationSignals() []string {
	if len(d.ActivationLine) > 0 {
		return slices.Clone(d.ActivationLine)
	}
	return slices.Clone(d.ActivationTokens)
}

// ActivationOutput returns output lines that satisfy the activation signals.
func (d *Descriptor) ActivationOutput() []string {
	if len(d.ActivationLine) > 0 {
		return []string{strings.Join(d.ActivationLine, " ")}
	}
	return slices.Clone(d.ActivationTokens)
}

func expand(tmpl string, vars map[string]string) string {
	return os.Expand(tmpl, func(name string) string {
		return vars[name]
	})
}

func references(tmpl string) []string {
	var refs []string
	os.Expand(tmpl, func(name string) string {
		refs = append(refs, name)
		return ""
	})
	return refs
}
