package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ExecuteCommandWithCapture runs cmd with args and returns everything it
// printed. Output written through fmt to the process stdout and stderr is
// captured as well as the cobra writers.
func ExecuteCommandWithCapture(t *testing.T, cmd *cobra.Command, args []string) (string, error) {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	stdout, stderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = w, w

	piped := make(chan string, 1)
	go func() {
		var b bytes.Buffer
		_, _ = io.Copy(&b, r)
		piped <- b.String()
	}()

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	execErr := cmd.Execute()

	_ = w.Close()
	os.Stdout, os.Stderr = stdout, stderr

	return <-piped + buf.String(), execErr
}

// AssertCommandOutput runs cmd, requires success and checks the output
// contains every expected string. It returns the output for further checks.
func AssertCommandOutput(t *testing.T, cmd *cobra.Command, args []string, expected ...string) string {
	t.Helper()
	output, err := ExecuteCommandWithCapture(t, cmd, args)
	require.NoError(t, err, output)
	for _, want := range expected {
		assert.Contains(t, output, want)
	}
	return output
}

// AssertCommandFailure runs cmd and checks it fails with an error containing
// expectedError.
func AssertCommandFailure(t *testing.T, cmd *cobra.Command, args []string, expectedError string) {
	t.Helper()
	_, err := ExecuteCommandWithCapture(t, cmd, args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), expectedError)
}

// SetupCommandContext attaches app to cmd as PersistentPreRunE would.
func SetupCommandContext(cmd *cobra.Command, app *App) {
	cmd.SetContext(withApp(context.Background(), app))
}
