package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.pid")

	require.NoError(t, Acquire(path))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	running, gotPID, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), gotPID)

	require.NoError(t, Release(path))

	running, _, err = IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestAcquireRejectsLivePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.pid")
	require.NoError(t, Acquire(path))

	err := Acquire(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestAcquireReplacesStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.pid")
	// A PID that cannot be alive.
	require.NoError(t, os.WriteFile(path, []byte("99999999"), 0644))

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}
