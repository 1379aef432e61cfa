package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trly/nfops/internal/reconcile"
)

func TestSimulateBringsEveryUnitUp(t *testing.T) {
	app, rt := newTestApp(t)

	cmd := (&SimulateCommand{}).GetCobraCommand()
	SetupCommandContext(cmd, app)
	require.NoError(t, cmd.ParseFlags(nil))

	units, err := (&SimulateCommand{}).Run(cmd, app)
	require.NoError(t, err)
	require.Len(t, units, 7)

	for _, u := range units {
		assert.Equal(t, reconcile.Active, u.Status.State, "%s: %s", u.Unit, u.Status.Message)
	}
	assert.Equal(t, "nr-ue", units[6].Unit)
	assert.Equal(t, "10.0.0.7", units[6].Address)

	byUnit := make(map[string]SimulatedUnit)
	for _, u := range units {
		byUnit[u.Unit] = u
	}
	assert.ElementsMatch(t, []string{"nrf:nrf:amf", "nrf:nrf:smf", "nrf:nrf:spgwu-tiny"}, byUnit["nrf"].Published)
	assert.Empty(t, byUnit["nr-ue"].Published)

	// The simulation never touches the application's own runtime or store.
	assert.Empty(t, rt.Calls())
	chs, err := app.Store.Channels(cmd.Context())
	require.NoError(t, err)
	assert.Empty(t, chs)
}

func TestSimulateCommandOutput(t *testing.T) {
	app, _ := newTestApp(t)

	cmd := (&SimulateCommand{}).GetCobraCommand()
	SetupCommandContext(cmd, app)
	output, err := ExecuteCommandWithCapture(t, cmd, []string{"--subnet", "192.168.70"})
	require.NoError(t, err)

	assert.Contains(t, output, "192.168.70.1")
	assert.Contains(t, output, "spgwu-tiny:spgwu:gnb")
	assert.NotContains(t, output, "blocked")
}
