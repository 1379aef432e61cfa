package execx

import (
	"bufio"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealRunner_CombinedOutput(t *testing.T) {
	runner := NewRealRunner()
	ctx := context.Background()

	t.Run("successful command execution", func(t *testing.T) {
		output, err := runner.CombinedOutput(ctx, "echo", "hello", "world")
		require.NoError(t, err)
		assert.Contains(t, string(output), "hello world")
	})

	t.Run("command not found", func(t *testing.T) {
		_, err := runner.CombinedOutput(ctx, "nonexistent-command-12345")
		assert.Error(t, err)
	})

	t.Run("command with error exit code", func(t *testing.T) {
		_, err := runner.CombinedOutput(ctx, "sh", "-c", "exit 1")
		assert.Error(t, err)
	})
}

func TestRealRunner_Stream(t *testing.T) {
	runner := NewRealRunner()

	t.Run("reads lines until exit", func(t *testing.T) {
		rc, err := runner.Stream(context.Background(), "sh", "-c", "echo first; echo second")
		require.NoError(t, err)
		defer func() { _ = rc.Close() }()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "first\nsecond\n", string(data))
	})

	t.Run("close stops a running command", func(t *testing.T) {
		rc, err := runner.Stream(context.Background(), "sh", "-c", "echo ready; sleep 30")
		require.NoError(t, err)

		scanner := bufio.NewScanner(rc)
		require.True(t, scanner.Scan())
		assert.Equal(t, "ready", scanner.Text())
		assert.NoError(t, rc.Close())
	})

	t.Run("command not found", func(t *testing.T) {
		_, err := runner.Stream(context.Background(), "nonexistent-command-12345")
		assert.Error(t, err)
	})
}
