package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// servePIDFile returns a PIDFile at the path serve uses, rooted in a
// fresh temp state dir.
func servePIDFile(t *testing.T) (*PIDFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remedy-serve.pid")
	return NewPIDFile(path), path
}

func TestPIDFile_RoundTrip(t *testing.T) {
	pf, _ := servePIDFile(t)

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_WriteRecordsOwnPID(t *testing.T) {
	pf, _ := servePIDFile(t)

	require.NoError(t, pf.Write())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_ReadMissing(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "remedy-serve.pid"))

	_, err := pf.Read()
	assert.Error(t, err)
}

func TestPIDFile_ReadGarbage(t *testing.T) {
	pf, path := servePIDFile(t)
	require.NoError(t, os.WriteFile(path, []byte("remedy\n"), 0o644))

	_, err := pf.Read()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_Remove(t *testing.T) {
	pf, path := servePIDFile(t)
	require.NoError(t, pf.WritePID(1))

	require.NoError(t, pf.Remove())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_RemoveMissing(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "remedy-serve.pid"))

	assert.Error(t, pf.Remove())
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf, _ := servePIDFile(t)
	require.NoError(t, pf.Write())

	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_IsRunning_StaleFile(t *testing.T) {
	pf, _ := servePIDFile(t)

	// A serve process that died without cleanup leaves a pid that no
	// longer resolves to a live process.
	require.NoError(t, pf.WritePID(999999))

	pid, running := pf.IsRunning()
	assert.Equal(t, 999999, pid, "stale pid is still reported")
	assert.False(t, running)
}

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "remedy-serve.pid"))

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	pf, _ := servePIDFile(t)
	require.NoError(t, pf.Write())

	// Signal 0 probes the process without delivering anything, which is
	// what serve --stop uses to poll for exit.
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}

func TestPIDFile_Signal_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "remedy-serve.pid"))

	err := pf.Signal(syscall.Signal(0))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")
}
