//go:build windows

package health

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

func lockHeld(f *os.File) (bool, error) {
	handle := windows.Handle(f.Fd())
	overlapped := &windows.Overlapped{}
	err := windows.LockFileEx(handle, windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, overlapped)
	if err == nil {
		_ = windows.UnlockFileEx(handle, 0, 1, 0, &windows.Overlapped{})
		return false, nil
	}
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return true, nil
	}
	return false, fmt.Errorf("check run lock: %w", err)
}
