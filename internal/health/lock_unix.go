//go:build darwin || linux

package health

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockHeld tries a shared non-blocking lock; failing to get one means the
// keeper holds its exclusive lock.
func lockHeld(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB)
	if err == nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return false, nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return true, nil
	}
	return false, fmt.Errorf("check run lock: %w", err)
}
