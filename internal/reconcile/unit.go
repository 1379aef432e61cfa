package reconcile

import (
	"fmt"

	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/leadership"
	"github.com/trly/nfops/internal/log"
	"github.com/trly/nfops/internal/workload"
)

// Unit is one deployed network-function instance.
type Unit struct {
	Descriptor *descriptor.Descriptor
	Leader     leadership.Checker
	Workload   *workload.Controller
	// Tcpdump is nil unless the descriptor asks for packet capture.
	Tcpdump *workload.Controller

	opts   Options
	status Status
}

// Name returns the unit name.
func (u *Unit) Name() string {
	return u.Descriptor.Name
}

// NewUnit builds a unit whose services run on the runtimes factory hands out
// for its containers.
func NewUnit(d *descriptor.Descriptor, factory workload.Factory, leader leadership.Checker, opts Options, logger log.Logger) (*Unit, error) {
	rt, err := factory.RuntimeFor(d.Container)
	if err != nil {
		return nil, fmt.Errorf("failed to get runtime for %s: %w", d.Name, err)
	}
	logger = logger.With("unit", d.Name)

	u := &Unit{
		Descriptor: d,
		Leader:     leader,
		Workload:   workload.NewController(rt, d.Name, d.Service, d.Summary, logger),
		opts:       opts,
		status:     Status{State: Blocked},
	}

	if d.Tcpdump {
		trt, err := factory.RuntimeFor(descriptor.TcpdumpContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to get tcpdump runtime for %s: %w", d.Name, err)
		}
		service := descriptor.TcpdumpService + "-" + d.Name
		u.Tcpdump = workload.NewController(trt, descriptor.TcpdumpService, service, "tcpdump", logger)
	}
	return u, nil
}
