// Package reconcile drives units through dependency-gated bring-up: resolve
// upstream data, configure and start the workload, confirm activation and
// publish readiness downstream.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trly/nfops/internal/activation"
	"github.com/trly/nfops/internal/cluster"
	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/log"
	"github.com/trly/nfops/internal/publish"
	"github.com/trly/nfops/internal/resolver"
	"github.com/trly/nfops/internal/workload"
)

// ErrStoreUnavailable marks relation store failures. Like an unreachable
// runtime they defer the event.
var ErrStoreUnavailable = errors.New("relation store unavailable")

// Preparer performs one-time cluster adjustments for a unit.
type Preparer interface {
	Prepare(ctx context.Context, d *descriptor.Descriptor) error
}

// StatusRecorder persists the last status of a unit.
type StatusRecorder interface {
	RecordStatus(unit, state, message string) error
}

// Observer receives reconciliation telemetry.
type Observer interface {
	ObserveReconcile(unit, outcome string)
	ObserveState(unit, state string)
	ObservePublish(unit, channel string)
	SetDeferred(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveReconcile(string, string) {}
func (nopObserver) ObserveState(string, string)     {}
func (nopObserver) ObservePublish(string, string)   {}
func (nopObserver) SetDeferred(int)                 {}

// Deps are the collaborators of a Reconciler. Preparer, Recorder and
// Observer are optional.
type Deps struct {
	Resolver  *resolver.Resolver
	Publisher *publish.Publisher
	Detector  *activation.Detector
	Queue     *DeferQueue
	Preparer  Preparer
	Recorder  StatusRecorder
	Observer  Observer
	Logger    log.Logger
}

// Settings tune activation.
type Settings struct {
	ActivationTimeout time.Duration
	GraceDelay        time.Duration
}

// Result describes one handled event.
type Result struct {
	Event  Event
	Status Status
	// Transitions lists the states entered during the pass, in order.
	Transitions []ServiceState
	Deferred    bool
	Published   []string
	Err         error
}

// Outcome classifies the result for metrics and logs.
func (r Result) Outcome() string {
	switch {
	case r.Deferred:
		return "deferred"
	case r.Err != nil:
		return "error"
	default:
		return r.Status.State.String()
	}
}

// Reconciler is the single entry point for unit events. Handle must not run
// concurrently for the same unit; use a Dispatcher for concurrent delivery.
type Reconciler struct {
	deps     Deps
	settings Settings

	mu    sync.RWMutex
	units map[string]*Unit
}

// New creates a Reconciler.
func New(deps Deps, settings Settings) *Reconciler {
	if deps.Queue == nil {
		deps.Queue = NewDeferQueue()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Reconciler{deps: deps, settings: settings, units: make(map[string]*Unit)}
}

// Register adds a unit.
func (r *Reconciler) Register(u *Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[u.Name()]; ok {
		return fmt.Errorf("unit %s already registered", u.Name())
	}
	r.units[u.Name()] = u
	r.deps.Observer.ObserveState(u.Name(), u.status.State.String())
	return nil
}

// Units returns the registered unit names, sorted.
func (r *Reconciler) Units() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.units))
	for n := range r.units {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Status returns the current status of a unit.
func (r *Reconciler) Status(unit string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[unit]
	if !ok {
		return Status{}, false
	}
	return u.status, true
}

// Queue returns the deferral queue.
func (r *Reconciler) Queue() *DeferQueue {
	return r.deps.Queue
}

// Maintenance replaces a unit's status message without changing its state.
func (r *Reconciler) Maintenance(unit, message string) {
	r.mu.Lock()
	u, ok := r.units[unit]
	if ok {
		u.status.Message = message
	}
	r.mu.Unlock()
	if ok {
		r.record(u.Name(), u.status)
	}
}

// Handle runs one reconciliation pass for ev. It never panics on expected
// failures; they are reflected in the returned status.
func (r *Reconciler) Handle(ctx context.Context, ev Event) Result {
	res := r.handle(ctx, ev)
	r.deps.Observer.ObserveReconcile(ev.Unit, res.Outcome())
	r.deps.Observer.SetDeferred(r.deps.Queue.Len())
	return res
}

func (r *Reconciler) handle(ctx context.Context, ev Event) Result {
	r.mu.RLock()
	u, ok := r.units[ev.Unit]
	r.mu.RUnlock()
	if !ok {
		return Result{Event: ev, Err: fmt.Errorf("unknown unit %q", ev.Unit)}
	}

	if ev.Kind == RuntimeReachable {
		return r.redeliver(ctx, u, ev)
	}

	p := r.newPass(u, ev)
	if p.prev.State == Failed && ev.Kind != Install {
		p.logger.Debug("Unit failed, waiting for operator", "event", ev.Kind)
		return p.finish(nil)
	}
	return p.finish(r.dispatch(ctx, p))
}

func (r *Reconciler) dispatch(ctx context.Context, p *pass) error {
	switch p.ev.Kind {
	case Install:
		return r.install(ctx, p)
	case ConfigChanged:
		if p.ev.Options != nil {
			r.mu.Lock()
			p.u.opts = *p.ev.Options
			r.mu.Unlock()
			p.opts = *p.ev.Options
		}
		if err := r.syncTcpdump(ctx, p); err != nil {
			return err
		}
		return r.bringUp(ctx, p)
	case WorkloadReady:
		if p.ev.Container == descriptor.TcpdumpContainer {
			return r.tcpdumpReady(ctx, p)
		}
		return r.workloadReady(ctx, p)
	case DependencyChanged, DependencyBroken, Resync, RuntimeReachable:
		return r.bringUp(ctx, p)
	case ProvidedJoined:
		return r.publish(ctx, p)
	default:
		return fmt.Errorf("unknown event kind %s", p.ev.Kind)
	}
}

func (r *Reconciler) install(ctx context.Context, p *pass) error {
	d := p.u.Descriptor
	if r.deps.Preparer != nil {
		err := r.deps.Preparer.Prepare(ctx, d)
		switch {
		case cluster.IsPermissionDenied(err):
			p.logger.Warn("Cluster access denied", "error", err)
			p.to(Blocked, fmt.Sprintf("run `nfops trust %s` (grant cluster access) to continue", d.Name))
			return nil
		case cluster.IsExhausted(err):
			p.logger.Error("One-time operation exhausted its attempts", "error", err)
			p.to(Failed, fmt.Sprintf("%v; operator intervention required", err))
			return nil
		case err != nil:
			return err
		}
	}
	if p.status.State == Failed {
		p.to(Blocked, "")
	}
	return r.bringUp(ctx, p)
}

func (r *Reconciler) workloadReady(ctx context.Context, p *pass) error {
	d := p.u.Descriptor
	base := workload.Snapshot{Command: d.Command, Environment: d.BaseEnvironment(p.opts.Address)}
	if err := p.u.Workload.ApplyBase(ctx, base); err != nil {
		return err
	}
	return r.bringUp(ctx, p)
}

func (r *Reconciler) tcpdumpReady(ctx context.Context, p *pass) error {
	if p.u.Tcpdump == nil {
		p.logger.Debug("Packet capture not enabled for unit")
		return nil
	}
	snap := workload.Snapshot{Command: p.u.Descriptor.TcpdumpCommand()}
	if err := p.u.Tcpdump.ApplyBase(ctx, snap); err != nil {
		return err
	}
	return r.syncTcpdump(ctx, p)
}

func (r *Reconciler) syncTcpdump(ctx context.Context, p *pass) error {
	if p.u.Tcpdump == nil {
		return nil
	}
	exists, err := p.u.Tcpdump.Exists(ctx)
	if err != nil || !exists {
		return err
	}
	if p.opts.StartTcpdump {
		return p.u.Tcpdump.Start(ctx)
	}
	return p.u.Tcpdump.Stop(ctx)
}

// bringUp re-derives the unit state from the relation store and the
// runtime and moves the workload toward it.
func (r *Reconciler) bringUp(ctx context.Context, p *pass) error {
	u, d := p.u, p.u.Descriptor

	exists, err := u.Workload.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		p.logger.Info("Workload definition not found, nothing to configure yet")
		return nil
	}

	res, err := r.deps.Resolver.Resolve(ctx, d.Name, d.Requires)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	running, err := u.Workload.IsRunning(ctx)
	if err != nil {
		return err
	}

	if !res.AllSatisfied {
		if running {
			p.logger.Info("Dependencies lost, stopping workload", "missing", res.Unsatisfied(d.Requires))
			if err := u.Workload.Stop(ctx); err != nil {
				return err
			}
		}
		p.to(Blocked, descriptor.BlockedMessage(res.Unsatisfied(d.Requires)))
		return nil
	}

	snap := workload.Snapshot{Command: d.Command, Environment: d.ResolvedEnvironment(p.opts.Address, res.Values)}
	if p.prev.State == Active && running && u.Workload.Applied(snap) {
		return r.publish(ctx, p)
	}

	p.to(Configuring, "")
	changed, err := u.Workload.Configure(ctx, snap)
	if err != nil {
		return err
	}

	if running && !changed {
		// A running workload does not print its startup signals again.
		p.logger.Debug("Workload already running with current configuration")
		p.to(Active, "")
		p.settled = true
		return r.publish(ctx, p)
	}

	p.to(Starting, "")
	if running {
		if err := u.Workload.Restart(ctx); err != nil {
			return err
		}
	} else {
		if err := u.Workload.Push(ctx, d.InitFiles); err != nil {
			return err
		}
		if err := u.Workload.Start(ctx); err != nil {
			return err
		}
	}

	p.to(WaitingActive, "")
	ok, err := r.awaitActivation(ctx, u)
	if err != nil {
		return err
	}
	if !ok {
		p.logger.Warn("Activation timed out", "timeout", r.settings.ActivationTimeout)
		if err := u.Workload.Stop(ctx); err != nil {
			return err
		}
		p.to(Blocked, "activation timed out waiting for "+quoteAll(d.ActivationSignals()))
		return nil
	}
	if err := r.deps.Detector.Settle(ctx, r.settings.GraceDelay); err != nil {
		return err
	}

	p.to(Active, "")
	p.settled = true
	p.logger.Info("Unit active")
	return r.publish(ctx, p)
}

func (r *Reconciler) publish(ctx context.Context, p *pass) error {
	if p.status.State != Active {
		p.logger.Debug("Unit not active, nothing to publish", "state", p.status.State)
		return nil
	}

	written, err := r.deps.Publisher.Publish(ctx, p.u.Descriptor, p.opts.Address, p.u.Leader, p.u.Workload)
	for _, ch := range written {
		r.deps.Observer.ObservePublish(p.u.Name(), ch)
	}
	p.published = append(p.published, written...)
	if publish.IsSkipped(err) {
		p.logger.Debug("Publish skipped", "reason", err)
		return nil
	}
	if err != nil {
		if workload.IsRuntimeUnavailable(err) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// awaitActivation watches the freshly started workload for the descriptor's
// activation signals.
func (r *Reconciler) awaitActivation(ctx context.Context, u *Unit) (bool, error) {
	d := u.Descriptor
	if len(d.ActivationLine) > 0 {
		return r.deps.Detector.AwaitLine(ctx, u.Workload, d.ActivationLine, r.settings.ActivationTimeout)
	}
	return r.deps.Detector.AwaitActive(ctx, u.Workload, d.ActivationTokens, r.settings.ActivationTimeout)
}

func (r *Reconciler) redeliver(ctx context.Context, u *Unit, ev Event) Result {
	events := r.deps.Queue.Drain(u.Name())
	if len(events) == 0 {
		res := r.handle(ctx, Event{Kind: Resync, Unit: u.Name()})
		res.Event = ev
		return res
	}

	var last Result
	for i, e := range events {
		last = r.handle(ctx, e)
		if last.Deferred {
			for _, rest := range events[i+1:] {
				r.deps.Queue.Push(rest)
			}
			break
		}
	}
	return last
}

func (r *Reconciler) record(unit string, st Status) {
	r.deps.Observer.ObserveState(unit, st.State.String())
	if r.deps.Recorder == nil {
		return
	}
	if err := r.deps.Recorder.RecordStatus(unit, st.State.String(), st.Message); err != nil {
		r.deps.Logger.Warn("Failed to record status", "unit", unit, "error", err)
	}
}

func isDeferrable(err error) bool {
	return workload.IsRuntimeUnavailable(err) || errors.Is(err, ErrStoreUnavailable)
}

func quoteAll(tokens []string) string {
	q := make([]string, len(tokens))
	for i, t := range tokens {
		q[i] = fmt.Sprintf("%q", t)
	}
	return strings.Join(q, ", ")
}

// pass carries the working state of one Handle call. Its status only
// reaches the unit when the pass ends without deferral.
type pass struct {
	r           *Reconciler
	u           *Unit
	ev          Event
	opts        Options
	prev        Status
	status      Status
	transitions []ServiceState
	published   []string
	// settled is set once Active is reached; later deferrals keep it.
	settled bool
	logger  log.Logger
}

func (r *Reconciler) newPass(u *Unit, ev Event) *pass {
	r.mu.RLock()
	prev, opts := u.status, u.opts
	r.mu.RUnlock()
	return &pass{
		r:      r,
		u:      u,
		ev:     ev,
		opts:   opts,
		prev:   prev,
		status: prev,
		logger: r.deps.Logger.With("unit", u.Name(), "event", ev.Kind.String()),
	}
}

func (p *pass) to(s ServiceState, message string) {
	if s != p.status.State {
		p.logger.Debug("State transition", "from", p.status.State, "to", s)
	}
	p.status = Status{State: s, Message: message}
	p.transitions = append(p.transitions, s)
}

func (p *pass) finish(err error) Result {
	res := Result{Event: p.ev, Transitions: p.transitions, Published: p.published}

	switch {
	case err != nil && isDeferrable(err):
		if p.r.deps.Queue.Push(p.ev) {
			p.logger.Info("Runtime unavailable, deferring event", "error", err)
		}
		res.Deferred = true
		if !p.settled {
			res.Status = p.prev
			return res
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Status = p.prev
		res.Err = err
		return res
	case err != nil:
		p.logger.Error("Reconciliation failed", "error", err)
		p.status = Status{State: Blocked, Message: err.Error()}
		res.Err = err
	}

	res.Status = p.status
	if p.status != p.prev {
		p.r.mu.Lock()
		p.u.status = p.status
		p.r.mu.Unlock()
		p.r.record(p.u.Name(), p.status)
	}
	return res
}
