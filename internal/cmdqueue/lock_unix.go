//go:build unix

// internal/cmdqueue/lock_unix.go
package cmdqueue

import (
	"os"

	"golang.org/x/sys/unix"
)

func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}
