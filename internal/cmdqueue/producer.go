// internal/cmdqueue/producer.go
package cmdqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// appendAttempts bounds how often a producer chases a queue file that was claimed under it.
const appendAttempts = 10

// Append writes c as one line to the queue at path.
//
// The line is written with a single O_APPEND write while holding an exclusive
// lock, and only after checking the open file is still the one at path. A
// processor that renamed the file in between makes us reopen, so the line
// lands in the next batch instead of a batch that was already read.
func Append(path string, c Command) error {
	if path == "" {
		return errors.New("cmdqueue: path required")
	}
	line, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cmdqueue: encode: %w", err)
	}
	line = append(line, '\n')

	for i := 0; i < appendAttempts; i++ {
		done, err := appendOnce(path, line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("cmdqueue: append %s: queue file kept moving", path)
}

func appendOnce(path string, line []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o664)
	if err != nil {
		return false, fmt.Errorf("cmdqueue: open %s: %w", path, err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return false, fmt.Errorf("cmdqueue: lock %s: %w", path, err)
	}

	same, err := isCurrent(f, path)
	if err != nil {
		return false, err
	}
	if !same {
		return false, nil
	}

	if _, err := f.Write(line); err != nil {
		return false, fmt.Errorf("cmdqueue: append %s: %w", path, err)
	}
	return true, nil
}

// isCurrent reports whether f is still the file at path.
func isCurrent(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("cmdqueue: stat open queue: %w", err)
	}
	cur, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("cmdqueue: stat %s: %w", path, err)
	}
	return os.SameFile(held, cur), nil
}
