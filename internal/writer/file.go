// internal/writer/file.go
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileWriter appends one JSON line per record.
// Each line goes out in a single write so concurrent readers never see half a record.
type FileWriter struct {
	mu  sync.Mutex
	out io.WriteCloser
}

// OpenFile opens path for appending, creating it when absent.
// "-" writes to stdout.
func OpenFile(path string) (*FileWriter, error) {
	if path == "-" {
		return &FileWriter{out: nopCloser{os.Stdout}}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("writer: open sink %s: %w", path, err)
	}
	return &FileWriter{out: f}, nil
}

// NewStream writes to w. Close closes w when it is an io.Closer.
func NewStream(w io.Writer) *FileWriter {
	if wc, ok := w.(io.WriteCloser); ok {
		return &FileWriter{out: wc}
	}
	return &FileWriter{out: nopCloser{w}}
}

func (fw *FileWriter) Write(_ context.Context, r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("writer: encode record: %w", err)
	}
	line = append(line, '\n')

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.out.Write(line); err != nil {
		return fmt.Errorf("writer: append record: %w", err)
	}
	return nil
}

func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.out.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
