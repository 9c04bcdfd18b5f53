//go:build !unix

// internal/cmdqueue/lock_other.go
package cmdqueue

import "os"

// Rename is the only exclusion on platforms without flock.
func lockFile(*os.File) error { return nil }
