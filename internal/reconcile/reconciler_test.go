package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trly/nfops/internal/activation"
	"github.com/trly/nfops/internal/cluster"
	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/leadership"
	"github.com/trly/nfops/internal/publish"
	"github.com/trly/nfops/internal/relation"
	"github.com/trly/nfops/internal/resolver"
	"github.com/trly/nfops/internal/testutil"
	"github.com/trly/nfops/internal/workload"
)

const (
	nrfChannel = "nrf:nrf:amf"
	amfChannel = "amf:amf:smf"
)

var nrfData = map[string]string{"host": "10.0.0.5", "port": "80", "api-version": "v1"}

func amfDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Name:        "amf",
		Container:   "amf",
		Service:     "oai_amf",
		Command:     "/openair-amf/bin/oai_amf -c /openair-amf/etc/amf.conf -o",
		Environment: map[string]string{"MCC": "208", "AMF_IP": "${address}"},
		Requires: []descriptor.Requirement{{
			Channel: "nrf",
			Keys:    []string{"host", "port", "api-version"},
			Env:     map[string]string{"NRF_IPV4_ADDRESS": "${host}", "NRF_PORT": "${port}"},
		}},
		Provides:         []descriptor.Provision{{Channel: "amf", Data: map[string]string{"host": "${address}", "port": "80"}}},
		ActivationTokens: []string{"Initializing AMF", "HTTP1 server started"},
	}
}

type spyObserver struct {
	mu        sync.Mutex
	published []string
	outcomes  []string
	deferred  int
}

func (s *spyObserver) ObserveReconcile(_, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

func (s *spyObserver) ObserveState(string, string) {}

func (s *spyObserver) ObservePublish(_, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, channel)
}

func (s *spyObserver) SetDeferred(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred = n
}

func (s *spyObserver) publishCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	rt       *workload.FakeRuntime
	store    *relation.MemoryStore
	leader   *leadership.Static
	observer *spyObserver
	r        *Reconciler
	unit     *Unit
}

type harnessOption func(*Deps, *Settings)

func withPreparer(p Preparer) harnessOption {
	return func(d *Deps, _ *Settings) { d.Preparer = p }
}

func withTimeout(timeout time.Duration) harnessOption {
	return func(_ *Deps, s *Settings) { s.ActivationTimeout = timeout }
}

func newHarness(t *testing.T, d *descriptor.Descriptor, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	rt := workload.NewFakeRuntime()
	rt.Script(d.Service, "[info] loading config", "Initializing AMF", "[debug] noise", "HTTP1 server started")

	store := relation.NewMemoryStore()
	require.NoError(t, store.Join(ctx, relation.Channel{Endpoint: "nrf", Provider: "nrf", Consumer: "amf"}))
	require.NoError(t, store.Join(ctx, relation.Channel{Endpoint: "amf", Provider: "amf", Consumer: "smf"}))

	observer := &spyObserver{}
	deps := Deps{
		Resolver:  resolver.New(store),
		Publisher: publish.New(store, logger),
		Detector:  activation.NewDetector(clock.WallClock, logger),
		Queue:     NewDeferQueue(),
		Observer:  observer,
		Logger:    logger,
	}
	settings := Settings{ActivationTimeout: 5 * time.Second}
	for _, o := range opts {
		o(&deps, &settings)
	}

	r := New(deps, settings)
	leader := leadership.NewStatic(true)
	factory := workload.FactoryFunc(func(string) (workload.Runtime, error) { return rt, nil })
	u, err := NewUnit(d, factory, leader, Options{Address: "10.0.0.9"}, logger)
	require.NoError(t, err)
	require.NoError(t, r.Register(u))

	return &harness{t: t, ctx: ctx, rt: rt, store: store, leader: leader, observer: observer, r: r, unit: u}
}

func (h *harness) handle(kind EventKind) Result {
	h.t.Helper()
	res := h.r.Handle(h.ctx, Event{Kind: kind, Unit: "amf"})
	h.assertInvariant()
	return res
}

// assertInvariant checks that an active unit has every dependency satisfied.
func (h *harness) assertInvariant() {
	h.t.Helper()
	st, _ := h.r.Status("amf")
	if st.State != Active {
		return
	}
	res, err := resolver.New(h.store).Resolve(h.ctx, "amf", h.unit.Descriptor.Requires)
	require.NoError(h.t, err)
	assert.True(h.t, res.AllSatisfied, "active unit with unsatisfied dependencies")
}

func (h *harness) publishNRF() {
	h.t.Helper()
	require.NoError(h.t, h.store.Write(h.ctx, nrfChannel, relation.SideProvider, nrfData))
}

func (h *harness) running() bool {
	h.t.Helper()
	ok, err := h.unit.Workload.IsRunning(h.ctx)
	require.NoError(h.t, err)
	return ok
}

func (h *harness) bringUp() {
	h.t.Helper()
	h.handle(WorkloadReady)
	h.publishNRF()
	res := h.handle(DependencyChanged)
	require.Equal(h.t, Active, res.Status.State, res.Status.Message)
}

func TestScenarioA_EmptyDependencyBlocks(t *testing.T) {
	h := newHarness(t, amfDescriptor())

	res := h.handle(WorkloadReady)
	require.NoError(t, res.Err)
	assert.Equal(t, Status{State: Blocked, Message: "need nrf relation"}, res.Status)
	assert.Zero(t, h.rt.CountCalls("start", "oai_amf"))

	// Absent and empty channels read the same.
	require.NoError(t, h.store.Break(h.ctx, nrfChannel))
	res = h.handle(DependencyBroken)
	assert.Equal(t, Status{State: Blocked, Message: "need nrf relation"}, res.Status)
	assert.Zero(t, h.rt.CountCalls("start", "oai_amf"))
}

func TestScenarioB_SatisfiedDependencyActivatesAndPublishes(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.handle(WorkloadReady)
	h.publishNRF()

	res := h.handle(DependencyChanged)
	require.NoError(t, res.Err)
	assert.Equal(t, []ServiceState{Configuring, Starting, WaitingActive, Active}, res.Transitions)
	assert.Equal(t, Status{State: Active}, res.Status)
	assert.Equal(t, []string{amfChannel}, res.Published)
	assert.True(t, h.running())

	spec, ok := h.rt.Service("oai_amf")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", spec.Environment["NRF_IPV4_ADDRESS"])
	assert.Equal(t, "80", spec.Environment["NRF_PORT"])
	assert.Equal(t, "10.0.0.9", spec.Environment["AMF_IP"])
	assert.Equal(t, "208", spec.Environment["MCC"])

	data, err := h.store.Read(h.ctx, amfChannel, relation.SideProvider)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"host": "10.0.0.9", "port": "80"}, data)
}

func TestScenarioC_BrokenDependencyStopsAndBlocks(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.bringUp()
	published := h.observer.publishCount()

	require.NoError(t, h.store.Break(h.ctx, nrfChannel))
	res := h.handle(DependencyBroken)

	require.NoError(t, res.Err)
	assert.Equal(t, Status{State: Blocked, Message: "need nrf relation"}, res.Status)
	assert.False(t, h.running())
	assert.Equal(t, 1, h.rt.CountCalls("stop", "oai_amf"))
	assert.Empty(t, res.Published)
	assert.Equal(t, published, h.observer.publishCount())
}

func TestScenarioD_RuntimeUnavailableDefers(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.handle(WorkloadReady)
	before, _ := h.r.Status("amf")
	h.publishNRF()

	h.rt.FailNext("start", workload.NewRuntimeUnavailableError("start", "oai_amf", errors.New("socket gone")))
	res := h.handle(DependencyChanged)

	assert.True(t, res.Deferred)
	assert.NoError(t, res.Err)
	assert.Equal(t, before, res.Status)
	after, _ := h.r.Status("amf")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, h.r.Queue().Len())
	assert.Equal(t, 1, h.observer.deferred)

	res = h.handle(RuntimeReachable)
	require.NoError(t, res.Err)
	assert.False(t, res.Deferred)
	assert.Equal(t, DependencyChanged, res.Event.Kind)
	assert.Equal(t, Active, res.Status.State)
	assert.Zero(t, h.r.Queue().Len())
}

func TestScenarioE_ActivationTimeoutBlocksAndRetries(t *testing.T) {
	h := newHarness(t, amfDescriptor(), withTimeout(100*time.Millisecond))
	h.rt.Script("oai_amf", "Initializing AMF", "still warming up")
	h.handle(WorkloadReady)
	h.publishNRF()

	res := h.handle(DependencyChanged)
	require.NoError(t, res.Err)
	assert.Equal(t, Blocked, res.Status.State)
	assert.Contains(t, res.Status.Message, "activation timed out")
	assert.Contains(t, res.Status.Message, `"HTTP1 server started"`)
	assert.False(t, h.running())

	h.rt.Script("oai_amf", "Initializing AMF", "HTTP1 server started")
	res = h.handle(DependencyChanged)
	require.NoError(t, res.Err)
	assert.Equal(t, []ServiceState{Configuring, Starting, WaitingActive, Active}, res.Transitions)
	assert.Equal(t, Active, res.Status.State)
	assert.Equal(t, 2, h.rt.CountCalls("start", "oai_amf"))
}

func TestSecondPassIsIdempotent(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.bringUp()
	h.rt.ResetCalls()

	first := h.handle(Resync)
	second := h.handle(Resync)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, Active, second.Status.State)
	assert.Empty(t, first.Transitions)
	assert.Empty(t, second.Transitions)
	assert.Equal(t, first.Published, second.Published)
	assert.Zero(t, h.rt.CountCalls("apply", "oai_amf"))
	assert.Zero(t, h.rt.CountCalls("start", "oai_amf"))
}

func TestStoppedWorkloadIsBroughtBackUp(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.bringUp()

	h.rt.SetRunning("oai_amf", false)
	res := h.handle(Resync)
	assert.Equal(t, Active, res.Status.State)
	assert.Equal(t, 2, h.rt.CountCalls("start", "oai_amf"))
}

func TestNoDefinitionMeansNothingToDo(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.publishNRF()

	res := h.handle(DependencyChanged)
	require.NoError(t, res.Err)
	assert.Equal(t, Status{State: Blocked}, res.Status)
	assert.Empty(t, res.Transitions)
	assert.Empty(t, h.rt.Calls())
}

func TestFollowerDoesNotPublish(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.leader.Set(false)
	h.handle(WorkloadReady)
	h.publishNRF()

	res := h.handle(DependencyChanged)
	assert.Equal(t, Active, res.Status.State)
	assert.Empty(t, res.Published)

	data, err := h.store.Read(h.ctx, amfChannel, relation.SideProvider)
	require.NoError(t, err)
	assert.Empty(t, data)

	// Leadership is re-queried on the next pass.
	h.leader.Set(true)
	res = h.handle(Resync)
	assert.Equal(t, []string{amfChannel}, res.Published)
}

func TestProvidedJoinedPublishesOnly(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.bringUp()
	h.rt.ResetCalls()

	require.NoError(t, h.store.Join(h.ctx, relation.Channel{Endpoint: "amf", Provider: "amf", Consumer: "gnb"}))
	res := h.handle(ProvidedJoined)

	assert.Equal(t, []string{"amf:amf:gnb", amfChannel}, res.Published)
	assert.Empty(t, res.Transitions)
	assert.Zero(t, h.rt.CountCalls("start", "oai_amf"))
}

func TestProvidedJoinedWhileBlockedPublishesNothing(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.handle(WorkloadReady)

	res := h.handle(ProvidedJoined)
	assert.Empty(t, res.Published)
	assert.Equal(t, Blocked, res.Status.State)
}

func TestDependencyValueChangeRestarts(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.bringUp()

	require.NoError(t, h.store.Write(h.ctx, nrfChannel, relation.SideProvider, map[string]string{"host": "10.0.0.6"}))
	res := h.handle(DependencyChanged)

	assert.Equal(t, Active, res.Status.State)
	assert.Equal(t, 1, h.rt.CountCalls("stop", "oai_amf"))
	assert.Equal(t, 2, h.rt.CountCalls("start", "oai_amf"))
	spec, _ := h.rt.Service("oai_amf")
	assert.Equal(t, "10.0.0.6", spec.Environment["NRF_IPV4_ADDRESS"])
}

func TestConfigChangedAppliesNewAddress(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.bringUp()

	res := h.r.Handle(h.ctx, Event{Kind: ConfigChanged, Unit: "amf", Options: &Options{Address: "10.0.0.10"}})
	require.NoError(t, res.Err)
	assert.Equal(t, Active, res.Status.State)

	spec, _ := h.rt.Service("oai_amf")
	assert.Equal(t, "10.0.0.10", spec.Environment["AMF_IP"])
	data, err := h.store.Read(h.ctx, amfChannel, relation.SideProvider)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", data["host"])
}

func TestTcpdumpSideService(t *testing.T) {
	d := amfDescriptor()
	d.Tcpdump = true
	h := newHarness(t, d)
	require.NotNil(t, h.unit.Tcpdump)

	res := h.r.Handle(h.ctx, Event{Kind: WorkloadReady, Unit: "amf", Container: descriptor.TcpdumpContainer})
	require.NoError(t, res.Err)

	spec, ok := h.rt.Service("tcpdump-amf")
	require.True(t, ok)
	assert.Equal(t, "/usr/sbin/tcpdump -i any -w /pcap_amf.pcap", spec.Command)
	assert.Zero(t, h.rt.CountCalls("start", "tcpdump-amf"))

	res = h.r.Handle(h.ctx, Event{Kind: ConfigChanged, Unit: "amf", Options: &Options{Address: "10.0.0.9", StartTcpdump: true}})
	require.NoError(t, res.Err)
	running, err := h.unit.Tcpdump.IsRunning(h.ctx)
	require.NoError(t, err)
	assert.True(t, running)

	res = h.r.Handle(h.ctx, Event{Kind: ConfigChanged, Unit: "amf", Options: &Options{Address: "10.0.0.9"}})
	require.NoError(t, res.Err)
	running, _ = h.unit.Tcpdump.IsRunning(h.ctx)
	assert.False(t, running)
}

func TestInitFilesArePushedBeforeStart(t *testing.T) {
	d := amfDescriptor()
	d.InitFiles = []descriptor.InitFile{{Path: "/docker-entrypoint-initdb.d/db.sql", Content: "CREATE TABLE t (id int);"}}
	h := newHarness(t, d)
	h.bringUp()

	content, ok := h.rt.File("/docker-entrypoint-initdb.d/db.sql")
	require.True(t, ok)
	assert.Equal(t, "CREATE TABLE t (id int);", string(content))

	var ops []string
	for _, c := range h.rt.Calls() {
		if c.Op == "push" || c.Op == "start" {
			ops = append(ops, c.Op)
		}
	}
	assert.Equal(t, []string{"push", "start"}, ops)
}

type preparerFunc func(ctx context.Context, d *descriptor.Descriptor) error

func (f preparerFunc) Prepare(ctx context.Context, d *descriptor.Descriptor) error { return f(ctx, d) }

func TestInstallPermissionDenied(t *testing.T) {
	denied := preparerFunc(func(context.Context, *descriptor.Descriptor) error {
		return &cluster.PermissionDeniedError{Operation: cluster.OpCheckAccess, Cause: errors.New("forbidden")}
	})
	h := newHarness(t, amfDescriptor(), withPreparer(denied))
	h.handle(WorkloadReady)
	h.publishNRF()

	res := h.handle(Install)
	require.NoError(t, res.Err)
	assert.Equal(t, Blocked, res.Status.State)
	assert.Equal(t, "run `nfops trust amf` (grant cluster access) to continue", res.Status.Message)
	assert.Zero(t, h.rt.CountCalls("start", "oai_amf"))
}

func TestInstallExhaustedFails(t *testing.T) {
	fail := true
	prep := preparerFunc(func(context.Context, *descriptor.Descriptor) error {
		if fail {
			return &cluster.ExhaustedError{Unit: "amf", Operation: cluster.OpPatchPorts, Attempts: 5, Cause: errors.New("timeout")}
		}
		return nil
	})
	h := newHarness(t, amfDescriptor(), withPreparer(prep))
	h.handle(WorkloadReady)
	h.publishNRF()

	res := h.handle(Install)
	require.NoError(t, res.Err)
	assert.Equal(t, Failed, res.Status.State)
	assert.Contains(t, res.Status.Message, "operator intervention required")

	// Failed is sticky for ordinary events.
	res = h.handle(DependencyChanged)
	assert.Equal(t, Failed, res.Status.State)
	assert.Zero(t, h.rt.CountCalls("start", "oai_amf"))

	// A new install retries.
	fail = false
	res = h.handle(Install)
	assert.Equal(t, Active, res.Status.State)
}

type failingStore struct {
	relation.Store
}

func (failingStore) Channels(context.Context) ([]relation.Channel, error) {
	return nil, errors.New("database is locked")
}

func TestStoreFailureDefers(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.handle(WorkloadReady)

	logger := testutil.NewTestLogger(t)
	r := New(Deps{
		Resolver:  resolver.New(failingStore{}),
		Publisher: publish.New(failingStore{}, logger),
		Detector:  activation.NewDetector(clock.WallClock, logger),
		Logger:    logger,
	}, Settings{ActivationTimeout: time.Second})
	require.NoError(t, r.Register(h.unit))

	res := r.Handle(h.ctx, Event{Kind: DependencyChanged, Unit: "amf"})
	assert.True(t, res.Deferred)
	assert.Equal(t, Status{State: Blocked, Message: "need nrf relation"}, res.Status)
	assert.Equal(t, 1, r.Queue().Len())
}

func TestUnknownUnitAndEvent(t *testing.T) {
	h := newHarness(t, amfDescriptor())

	res := h.r.Handle(h.ctx, Event{Kind: Resync, Unit: "ghost"})
	assert.Error(t, res.Err)
	assert.Equal(t, "error", res.Outcome())

	res = h.r.Handle(h.ctx, Event{Kind: EventKind(99), Unit: "amf"})
	assert.ErrorContains(t, res.Err, "unknown event kind")
}

func TestMaintenanceKeepsState(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.r.Maintenance("amf", "retrying patch-ports (attempt 2)")

	st, ok := h.r.Status("amf")
	require.True(t, ok)
	assert.Equal(t, Blocked, st.State)
	assert.Equal(t, "retrying patch-ports (attempt 2)", st.Message)
}

func TestRecorderReceivesStatus(t *testing.T) {
	rec := &memRecorder{}
	h := newHarness(t, amfDescriptor(), func(d *Deps, _ *Settings) { d.Recorder = rec })
	h.bringUp()

	assert.Equal(t, []string{"blocked:need nrf relation", "active:"}, rec.entries)
}

type memRecorder struct {
	entries []string
}

func (m *memRecorder) RecordStatus(_, state, message string) error {
	m.entries = append(m.entries, state+":"+message)
	return nil
}

func TestRunningWorkloadIsNotRestartedAfterInstallBlock(t *testing.T) {
	deny := false
	prep := preparerFunc(func(context.Context, *descriptor.Descriptor) error {
		if deny {
			return &cluster.PermissionDeniedError{Operation: cluster.OpCheckAccess, Cause: errors.New("forbidden")}
		}
		return nil
	})
	h := newHarness(t, amfDescriptor(), withPreparer(prep))
	h.bringUp()

	deny = true
	res := h.handle(Install)
	require.Equal(t, Blocked, res.Status.State)
	require.True(t, h.running())

	// The running process has printed its startup output already.
	h.rt.ResetCalls()
	res = h.handle(DependencyChanged)

	require.NoError(t, res.Err)
	assert.Equal(t, Status{State: Active}, res.Status)
	assert.Equal(t, []ServiceState{Configuring, Active}, res.Transitions)
	assert.True(t, h.running())
	assert.Zero(t, h.rt.CountCalls("stop", "oai_amf"))
	assert.Zero(t, h.rt.CountCalls("start", "oai_amf"))
	assert.Zero(t, h.rt.CountCalls("logs", "oai_amf"))
	assert.Equal(t, []string{amfChannel}, res.Published)
}

func TestActivationLineMode(t *testing.T) {
	d := amfDescriptor()
	d.ActivationLine = []string{"amf_app", "started"}
	h := newHarness(t, d, withTimeout(100*time.Millisecond))
	h.rt.Script("oai_amf", "amf_app loading", "sbi started", "amf_app started")
	h.handle(WorkloadReady)
	h.publishNRF()

	res := h.handle(DependencyChanged)
	require.NoError(t, res.Err)
	assert.Equal(t, Active, res.Status.State)

	h.rt.Script("oai_amf", "amf_app loading", "sbi started")
	h.rt.SetRunning("oai_amf", false)
	res = h.handle(Resync)
	assert.Equal(t, Blocked, res.Status.State)
	assert.Equal(t, `activation timed out waiting for "amf_app", "started"`, res.Status.Message)
}

type flakyStore struct {
	relation.Store
	failOn string
}

func (s flakyStore) Write(ctx context.Context, id string, side relation.Side, data map[string]string) error {
	if id == s.failOn {
		return errors.New("disk I/O error")
	}
	return s.Store.Write(ctx, id, side, data)
}

func TestPartialPublishIsReported(t *testing.T) {
	h := newHarness(t, amfDescriptor())
	h.bringUp()
	require.NoError(t, h.store.Join(h.ctx, relation.Channel{Endpoint: "amf", Provider: "amf", Consumer: "gnb"}))

	logger := testutil.NewTestLogger(t)
	observer := &spyObserver{}
	r := New(Deps{
		Resolver:  resolver.New(h.store),
		Publisher: publish.New(flakyStore{Store: h.store, failOn: amfChannel}, logger),
		Detector:  activation.NewDetector(clock.WallClock, logger),
		Observer:  observer,
		Logger:    logger,
	}, Settings{ActivationTimeout: time.Second})
	require.NoError(t, r.Register(h.unit))

	res := r.Handle(h.ctx, Event{Kind: ProvidedJoined, Unit: "amf"})
	assert.True(t, res.Deferred)
	assert.Equal(t, Active, res.Status.State)
	assert.Equal(t, []string{"amf:amf:gnb"}, res.Published)
	assert.Equal(t, []string{"amf:amf:gnb"}, observer.published)

	data, err := h.store.Read(h.ctx, "amf:amf:gnb", relation.SideProvider)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", data["host"])
}
