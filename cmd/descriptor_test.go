package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trly/nfops/internal/config"
)

func runDescriptor(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	cmd := (&DescriptorCommand{}).GetCobraCommand()
	SetupCommandContext(cmd, app)
	return ExecuteCommandWithCapture(t, cmd, args)
}

func TestDescriptorList(t *testing.T) {
	app, _ := newTestApp(t)

	output, err := runDescriptor(t, app, "list")
	require.NoError(t, err)
	for _, name := range []string{"nrf", "db", "amf", "smf", "spgwu-tiny", "gnb", "nr-ue", "oai_gnb"} {
		assert.Contains(t, output, name)
	}
	assert.Contains(t, output, "amf,spgwu")
}

func TestDescriptorShow(t *testing.T) {
	app, _ := newTestApp(t)

	output, err := runDescriptor(t, app, "show", "amf")
	require.NoError(t, err)
	assert.Contains(t, output, "name: amf")
	assert.Contains(t, output, "service: oai_amf")

	_, err = runDescriptor(t, app, "show", "ausf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown unit: ausf")
}

func TestDescriptorValidate(t *testing.T) {
	app, _ := newTestApp(t)

	output, err := runDescriptor(t, app, "validate")
	require.NoError(t, err)
	assert.Contains(t, output, "7 units valid")
	assert.Contains(t, output, "-> nr-ue")
}

func TestDescriptorOverridesAreLoaded(t *testing.T) {
	dir := t.TempDir()
	content := "name: amf\nenvironment:\n  AMF_LOG_LEVEL: overridden\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "amf.yaml"), []byte(content), 0o600))

	app, _ := newTestApp(t, func(s *config.Settings) { s.DescriptorDir = dir })

	output, err := runDescriptor(t, app, "show", "amf")
	require.NoError(t, err)
	assert.Contains(t, output, "AMF_LOG_LEVEL: overridden")
}
