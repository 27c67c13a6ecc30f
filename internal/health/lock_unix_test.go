//go:build darwin || linux

package health

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRunLockFollowsHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	h := NewRouter(RunLock{Path: path}, "keeper")

	// No keeper has ever run here.
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	holder, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer holder.Close()
	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_EX|unix.LOCK_NB))

	rec = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","services":{"keeper":"running","system":"operational"}}`, rec.Body.String())

	// The keeper exited: the file stays behind but nobody holds it.
	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_UN))
	rec = get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	running, err := RunLock{Path: path}.Running(context.Background(), "keeper")
	require.NoError(t, err)
	assert.False(t, running, "probing must not leave the lock taken")
}

func TestPgrepIgnoresOwnProcess(t *testing.T) {
	if _, err := exec.LookPath("pgrep"); err != nil {
		t.Skip("pgrep not installed")
	}
	name := filepath.Base(os.Args[0])
	if len(name) > 15 {
		t.Skip("process name too long for pgrep -x")
	}

	rec := get(t, NewRouter(Pgrep{}, name), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
