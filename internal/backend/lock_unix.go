//go:build !windows

package backend

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process owns the session files.
var ErrLocked = errors.New("session files locked by another process")

// lockAttempts bounds how often acquireLock retries after the lock file was
// replaced between open and flock.
const lockAttempts = 5

func acquireLock(path string) (*os.File, error) {
	for range lockAttempts {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening lock file: %w", err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, ErrLocked
			}
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
		// The previous owner unlinks the file before unlocking it, so a lock
		// taken on an inode that is no longer at path guards nothing.
		if lockedFileIsCurrent(f, path) {
			return f, nil
		}
		f.Close()
	}
	return nil, ErrLocked
}

// lockedFileIsCurrent reports whether f is still the file at path.
func lockedFileIsCurrent(f *os.File, path string) bool {
	var held, named unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &held); err != nil {
		return false
	}
	if err := unix.Stat(path, &named); err != nil {
		return false
	}
	return held.Dev == named.Dev && held.Ino == named.Ino
}

// releaseLock removes the lock file while still holding the lock, so nobody
// can lock the old inode once the next owner has created a new one.
func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	var err error
	if rmErr := os.Remove(f.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
		err = rmErr
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return errors.Join(err, f.Close())
}
