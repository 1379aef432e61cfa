package dependency

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trly/nfops/internal/descriptor"
)

func TestBuildFromBuiltinCatalog(t *testing.T) {
	topo, err := Build(descriptor.BuiltinCatalog())
	require.NoError(t, err)

	deps, err := topo.Dependencies("amf")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "nrf"}, deps)

	deps, err = topo.Dependencies("nrf")
	require.NoError(t, err)
	assert.Empty(t, deps)

	dependents, err := topo.Dependents("nrf")
	require.NoError(t, err)
	assert.Equal(t, []string{"amf", "smf", "spgwu-tiny"}, dependents)

	dependents, err = topo.Dependents("gnb")
	require.NoError(t, err)
	assert.Equal(t, []string{"nr-ue"}, dependents)
}

func TestOrderPutsProvidersFirst(t *testing.T) {
	topo, err := Build(descriptor.BuiltinCatalog())
	require.NoError(t, err)

	order, err := topo.Order()
	require.NoError(t, err)
	require.Len(t, order, 7)

	pos := make(map[string]int)
	for i, u := range order {
		pos[u] = i
	}
	for _, l := range topo.Links() {
		assert.Less(t, pos[l.Provider], pos[l.Consumer], "%s must precede %s", l.Provider, l.Consumer)
	}
	assert.Equal(t, "nr-ue", order[len(order)-1])
}

func TestOrderIsDeterministic(t *testing.T) {
	topo := NewTopology()
	for _, u := range []string{"c", "a", "b"} {
		require.NoError(t, topo.AddUnit(u))
	}

	first, err := topo.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, first)

	second, err := topo.Order()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConsumedAndProvidedLinks(t *testing.T) {
	topo, err := Build(descriptor.BuiltinCatalog())
	require.NoError(t, err)

	want := []Link{
		{Provider: "amf", Consumer: "gnb", Channel: "amf"},
		{Provider: "spgwu-tiny", Consumer: "gnb", Channel: "spgwu"},
	}
	if diff := cmp.Diff(want, topo.ConsumedBy("gnb")); diff != "" {
		t.Errorf("consumed links mismatch (-want +got):\n%s", diff)
	}

	provided := topo.ProvidedBy("db")
	require.Len(t, provided, 1)
	assert.Equal(t, "amf", provided[0].Consumer)
}

func TestCycleIsRejected(t *testing.T) {
	topo := NewTopology()
	require.NoError(t, topo.AddLink(Link{Provider: "a", Consumer: "b", Channel: "x"}))
	require.NoError(t, topo.AddLink(Link{Provider: "b", Consumer: "c", Channel: "y"}))

	err := topo.AddLink(Link{Provider: "c", Consumer: "a", Channel: "z"})
	require.Error(t, err)
	assert.True(t, descriptor.IsInvalid(err))
}

func TestSelfLinkIsRejected(t *testing.T) {
	topo := NewTopology()
	assert.Error(t, topo.AddLink(Link{Provider: "a", Consumer: "a", Channel: "x"}))
	assert.Error(t, topo.AddUnit(""))
}

func TestUnknownUnit(t *testing.T) {
	topo := NewTopology()
	_, err := topo.Dependencies("ghost")
	assert.Error(t, err)
	_, err = topo.Dependents("ghost")
	assert.Error(t, err)
}
