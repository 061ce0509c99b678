//go:build !windows

package store

import "golang.org/x/sys/unix"

// lockArena takes an advisory exclusive lock on the backing file, guarding
// against a second process truncating or remapping it concurrently during
// grow/compact. The lock belongs to the open file, so a second open of the
// same path waits until the first is closed, whether it comes from this
// process or another.
func lockArena(fd int) error {
	return unix.Flock(fd, unix.LOCK_EX)
}

// lockArenaShared takes an advisory shared lock, used by a read-only
// reopen. Other shared holders do not block it; a process or Store
// instance holding the exclusive read-write lock does, until it closes.
func lockArenaShared(fd int) error {
	return unix.Flock(fd, unix.LOCK_SH)
}

func unlockArena(fd int) error {
	return unix.Flock(fd, unix.LOCK_UN)
}

// pageSize reports the platform's memory page size, used to round the
// arena's growth requests up to a mapping-friendly boundary.
func pageSize() int {
	return unix.Getpagesize()
}
