package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trly/nfops/internal/config"
)

// TestRootCommandFlags verifies flag parsing.
func TestRootCommandFlags(t *testing.T) {
	cmd := (&RootCommand{}).GetCobraCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "false", verboseFlag.DefValue)

	for _, name := range []string{"config", "db-path", "state-file", "descriptor-dir", "runtime", "address"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := (&RootCommand{}).GetCobraCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"config", "descriptor", "reconcile", "relation", "run", "simulate", "status", "trust", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := (&RootCommand{}).GetCobraCommand()

	output, err := ExecuteCommandWithCapture(t, cmd, []string{"version"})
	require.NoError(t, err)
	assert.Contains(t, output, "nfops version dev")
	assert.Contains(t, output, "commit: none")
}

func TestConfigCommandShowsOverrides(t *testing.T) {
	dir := t.TempDir()
	cmd := (&RootCommand{}).GetCobraCommand()

	output, err := ExecuteCommandWithCapture(t, cmd, []string{
		"--runtime", config.RuntimeFake,
		"--state-file", filepath.Join(dir, "state.json"),
		"--address", "10.9.9.9",
		"config",
	})
	require.NoError(t, err)
	assert.Contains(t, output, "runtime: fake")
	assert.Contains(t, output, "unitAddress: 10.9.9.9")
	assert.Contains(t, output, filepath.Join(dir, "state.json"))
}

func TestRootBuildsAppForSubcommands(t *testing.T) {
	dir := t.TempDir()
	cmd := (&RootCommand{}).GetCobraCommand()

	output, err := ExecuteCommandWithCapture(t, cmd, []string{
		"--runtime", config.RuntimeFake,
		"--state-file", filepath.Join(dir, "state.json"),
		"--descriptor-dir", filepath.Join(dir, "units"),
		"descriptor", "validate",
	})
	require.NoError(t, err)
	assert.Contains(t, output, "7 units valid")
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Cleanup(func() { dbPath, runtimeName, unitAddress = "", "", "" })
	dbPath, runtimeName, unitAddress = "/tmp/r.db", config.RuntimeSystemd, "10.1.1.1"

	s := config.Defaults()
	applyFlagOverrides(s)

	assert.Equal(t, "/tmp/r.db", s.DBPath)
	assert.Equal(t, config.RuntimeSystemd, s.Runtime)
	assert.Equal(t, "10.1.1.1", s.UnitAddress)
	assert.Equal(t, config.DefaultStateFile, s.StateFile)
}
