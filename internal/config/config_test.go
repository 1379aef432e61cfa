package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
}

func TestInitConfigDefaults(t *testing.T) {
	resetViper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Chdir(tmpDir)

	provider := NewDefaultConfigProvider()
	cfg, err := provider.InitConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultStateFile, cfg.StateFile)
	assert.Equal(t, DefaultRuntime, cfg.Runtime)
	assert.Equal(t, DefaultActivationTimeout, cfg.ActivationTimeout)
	assert.Equal(t, DefaultGraceDelay, cfg.GraceDelay)
	assert.Equal(t, DefaultRetryAttempts, cfg.RetryAttempts)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.True(t, cfg.Leader)
	assert.Same(t, cfg, provider.GetConfig())
}

func TestSetAndGetConfig(t *testing.T) {
	resetViper()
	testConfig := &Settings{
		Runtime:           RuntimeSystemd,
		SystemdUnitDir:    "/custom/units",
		ActivationTimeout: 10 * time.Second,
		UserMode:          true,
	}

	provider := NewDefaultConfigProvider()
	provider.SetConfig(testConfig)
	assert.Equal(t, testConfig, provider.GetConfig())
}

func TestCustomConfigFile(t *testing.T) {
	resetViper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `runtime: systemd
activationTimeout: 45s
retryAttempts: 3
namespace: oai
startTcpdump: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	provider := NewDefaultConfigProvider()
	provider.SetConfigFilePath(path)
	cfg, err := provider.InitConfig()
	require.NoError(t, err)

	assert.Equal(t, RuntimeSystemd, cfg.Runtime)
	assert.Equal(t, 45*time.Second, cfg.ActivationTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, "oai", cfg.Namespace)
	assert.True(t, cfg.StartTcpdump)
	assert.Equal(t, DefaultGraceDelay, cfg.GraceDelay)
}

func TestMalformedConfigFile(t *testing.T) {
	resetViper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime: [unterminated"), 0o600))

	provider := NewDefaultConfigProvider()
	provider.SetConfigFilePath(path)
	_, err := provider.InitConfig()
	assert.Error(t, err)
}
