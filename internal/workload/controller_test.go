package workload

import (
	"bufio"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/testutil"
)

func newTestController(t *testing.T) (*Controller, *FakeRuntime) {
	t.Helper()
	rt := NewFakeRuntime()
	return NewController(rt, "amf", "oai_amf", "oai_amf", testutil.NewTestLogger(t)), rt
}

func TestSnapshotHash(t *testing.T) {
	a := Snapshot{Command: "/bin/amf", Environment: map[string]string{"A": "1", "B": "2"}}
	b := Snapshot{Command: "/bin/amf", Environment: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, a.Hash(), b.Hash())

	c := Snapshot{Command: "/bin/amf", Environment: map[string]string{"A": "1", "B": "3"}}
	assert.NotEqual(t, a.Hash(), c.Hash())

	d := Snapshot{Command: "/bin/smf", Environment: a.Environment}
	assert.NotEqual(t, a.Hash(), d.Hash())

	// Keys and values cannot bleed into each other.
	e := Snapshot{Environment: map[string]string{"A=1": ""}}
	f := Snapshot{Environment: map[string]string{"A": "1="}}
	assert.NotEqual(t, e.Hash(), f.Hash())
}

func TestConfigureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)
	snap := Snapshot{Command: "/bin/amf", Environment: map[string]string{"NRF_IPV4_ADDRESS": "10.0.0.5"}}

	changed, err := c.Configure(ctx, snap)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.Configure(ctx, snap)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, rt.CountCalls("apply", "oai_amf"))

	snap.Environment = map[string]string{"NRF_IPV4_ADDRESS": "10.0.0.6"}
	changed, err = c.Configure(ctx, snap)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, rt.CountCalls("apply", "oai_amf"))
}

func TestApplied(t *testing.T) {
	c, _ := newTestController(t)
	snap := Snapshot{Command: "/bin/amf"}
	assert.False(t, c.Applied(snap))

	_, err := c.Configure(context.Background(), snap)
	require.NoError(t, err)
	assert.True(t, c.Applied(snap))
	assert.False(t, c.Applied(Snapshot{Command: "/bin/smf"}))
}

func TestConfigureMergesOverBase(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)

	require.NoError(t, c.ApplyBase(ctx, Snapshot{Command: "/bin/amf", Environment: map[string]string{"MCC": "208", "TZ": "Europe/Paris"}}))
	_, err := c.Configure(ctx, Snapshot{Command: "/bin/amf", Environment: map[string]string{"MCC": "001", "NRF_PORT": "80"}})
	require.NoError(t, err)

	spec, ok := rt.Service("oai_amf")
	require.True(t, ok)
	want := map[string]string{"MCC": "001", "TZ": "Europe/Paris", "NRF_PORT": "80"}
	if diff := cmp.Diff(want, spec.Environment); diff != "" {
		t.Errorf("environment mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, StartupEnabled, spec.Startup)

	calls := rt.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, OverrideReplace, calls[0].Override)
	assert.Equal(t, OverrideMerge, calls[1].Override)
}

func TestApplyBaseResetsConfiguredHash(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)
	full := Snapshot{Command: "/bin/amf", Environment: map[string]string{"NRF_PORT": "80"}}

	_, err := c.Configure(ctx, full)
	require.NoError(t, err)
	require.NoError(t, c.ApplyBase(ctx, Snapshot{Command: "/bin/amf"}))

	changed, err := c.Configure(ctx, full)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 3, rt.CountCalls("apply", "oai_amf"))
}

func TestStartStopAreIdempotent(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)

	// Stopping an undefined service is a no-op.
	require.NoError(t, c.Stop(ctx))

	err := c.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsServiceError(err))
	assert.False(t, IsRuntimeUnavailable(err))

	require.NoError(t, c.ApplyBase(ctx, Snapshot{Command: "/bin/amf"}))
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, 1, rt.CountCalls("start", "oai_amf"))

	running, err := c.IsRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, 1, rt.CountCalls("stop", "oai_amf"))
}

func TestRestart(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)
	require.NoError(t, c.ApplyBase(ctx, Snapshot{Command: "/bin/amf"}))
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.Restart(ctx))
	assert.Equal(t, 1, rt.CountCalls("stop", "oai_amf"))
	assert.Equal(t, 2, rt.CountCalls("start", "oai_amf"))
}

func TestRuntimeUnavailableIsDistinct(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)
	rt.SetUnreachable(true)

	_, err := c.Exists(ctx)
	require.Error(t, err)
	assert.True(t, IsRuntimeUnavailable(err))
	assert.False(t, IsServiceError(err))
	assert.ErrorIs(t, err, ErrFakeUnreachable)

	_, err = c.Configure(ctx, Snapshot{Command: "/bin/amf"})
	assert.True(t, IsRuntimeUnavailable(err))

	// A failed apply is retried on the next call.
	rt.SetUnreachable(false)
	changed, err := c.Configure(ctx, Snapshot{Command: "/bin/amf"})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestFailNext(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)
	require.NoError(t, c.ApplyBase(ctx, Snapshot{Command: "/bin/amf"}))

	boom := NewServiceError("start", "oai_amf", errors.New("exit status 1"))
	rt.FailNext("start", boom)
	assert.ErrorIs(t, c.Start(ctx), boom)
	assert.NoError(t, c.Start(ctx))
}

func TestPush(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)

	require.NoError(t, c.Push(ctx, []descriptor.InitFile{{Path: "/docker-entrypoint-initdb.d/db.sql", Content: "CREATE TABLE x;"}}))
	content, ok := rt.File("/docker-entrypoint-initdb.d/db.sql")
	require.True(t, ok)
	assert.Equal(t, "CREATE TABLE x;", string(content))
}

func TestFakeFollowStream(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)
	rt.Script("oai_amf", "starting", "ready")
	require.NoError(t, c.ApplyBase(ctx, Snapshot{Command: "/bin/amf"}))
	require.NoError(t, c.Start(ctx))

	stream, err := c.Logs(ctx, true)
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(stream)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	next := func() string {
		select {
		case l := <-lines:
			return l
		case <-time.After(5 * time.Second):
			t.Fatal("timed out reading stream")
			return ""
		}
	}
	assert.Equal(t, "starting", next())
	assert.Equal(t, "ready", next())

	rt.Emit("oai_amf", "late line")
	assert.Equal(t, "late line", next())
}

func TestFakeFollowStartsAtCurrentEnd(t *testing.T) {
	ctx := context.Background()
	c, rt := newTestController(t)
	rt.Script("oai_amf", "starting", "ready")
	require.NoError(t, c.ApplyBase(ctx, Snapshot{Command: "/bin/amf"}))
	require.NoError(t, c.Start(ctx))

	first, err := c.Logs(ctx, true)
	require.NoError(t, err)
	sc := bufio.NewScanner(first)
	require.True(t, sc.Scan())
	assert.Equal(t, "starting", sc.Text())
	require.NoError(t, first.Close())

	// The service is still running; its startup output is history now.
	second, err := c.Logs(ctx, true)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	lines := make(chan string, 4)
	go func() {
		sc := bufio.NewScanner(second)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	rt.Emit("oai_amf", "heartbeat")
	select {
	case l := <-lines:
		assert.Equal(t, "heartbeat", l)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out reading stream")
	}

	// Without follow the full history is still readable.
	tail, err := c.Logs(ctx, false)
	require.NoError(t, err)
	defer func() { _ = tail.Close() }()
	content, err := io.ReadAll(tail)
	require.NoError(t, err)
	assert.Equal(t, "starting\nready\n", string(content))

	// A restart prints the script again.
	require.NoError(t, c.Restart(ctx))
	third, err := c.Logs(ctx, true)
	require.NoError(t, err)
	defer func() { _ = third.Close() }()
	sc = bufio.NewScanner(third)
	require.True(t, sc.Scan())
	assert.Equal(t, "starting", sc.Text())
}
