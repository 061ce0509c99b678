//go:build windows

package store

// lockArena, unlockArena and pageSize have no advisory-lock or page-size
// notion on the mmap-go Windows path (CreateFileMapping already serializes
// access); these are no-ops so the grow/remap path stays platform-uniform.
func lockArena(fd int) error       { return nil }
func lockArenaShared(fd int) error { return nil }
func unlockArena(fd int) error     { return nil }

func pageSize() int {
	return 4096
}
