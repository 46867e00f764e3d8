package scanner

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	r := NewExecRunner(slog.Default())

	stdout, stderr, rc, err := r.Run(context.Background(), []string{"sh", "-c", "echo hello; echo oops >&2"}, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, rc)
	assert.Equal(t, "hello\n", stdout)
	assert.Equal(t, "oops\n", stderr)
}

func TestExecRunnerExitCode(t *testing.T) {
	r := NewExecRunner(slog.Default())

	_, _, rc, err := r.Run(context.Background(), []string{"sh", "-c", "exit 3"}, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, rc)
}

func TestExecRunnerTimeoutKillsProcess(t *testing.T) {
	r := NewExecRunner(slog.Default())

	start := time.Now()
	_, stderr, rc, err := r.Run(context.Background(), []string{"sleep", "30"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, -1, rc)
	assert.Equal(t, "Command timed out after 1s", stderr)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecRunnerSpawnFailure(t *testing.T) {
	r := NewExecRunner(slog.Default())

	_, _, rc, err := r.Run(context.Background(), []string{"/nonexistent/netscout-tool"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, -1, rc)
}
