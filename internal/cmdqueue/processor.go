// internal/cmdqueue/processor.go
package cmdqueue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/rx178nwj/plant-dashboard/internal/protocol"
)

// workingSuffix marks a claimed batch.
const workingSuffix = ".working"

// maxLineSize bounds one queue line. Longer lines are skipped as malformed.
const maxLineSize = 64 * 1024

// Commander is what a dispatched command needs from a device session.
type Commander interface {
	EnsureConnected(ctx context.Context) error
	SetWateringThresholds(ctx context.Context, t protocol.WateringThresholds) error
	ControlLED(ctx context.Context, l protocol.LED) error
}

// SessionSource returns the live session for a device, creating it if needed.
type SessionSource func(ctx context.Context, deviceID string) (Commander, error)

// Stats summarises one Process call.
type Stats struct {
	Claimed    bool
	Lines      int
	Dispatched int
	Failed     int
	Skipped    int
}

// Processor drains the queue file. One Process call handles one claimed batch.
type Processor struct {
	path     string
	sessions SessionSource
	log      logrus.FieldLogger
	pid      int

	// OnResult observes every handled line. Optional.
	OnResult func(c Command, err error)

	warnedLeftovers map[string]bool
}

// NewProcessor builds a processor for the queue at path.
func NewProcessor(path string, sessions SessionSource, log logrus.FieldLogger) (*Processor, error) {
	if path == "" {
		return nil, errors.New("cmdqueue: path required")
	}
	if sessions == nil {
		return nil, errors.New("cmdqueue: session source required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{
		path:            path,
		sessions:        sessions,
		log:             log.WithField("queue", path),
		pid:             os.Getpid(),
		warnedLeftovers: make(map[string]bool),
	}, nil
}

// Path is the queue file path.
func (p *Processor) Path() string { return p.path }

// Claim atomically takes ownership of the current queue contents by renaming the file.
// It returns "" when there is nothing to claim.
func (p *Processor) Claim() (string, error) {
	working := fmt.Sprintf("%s.%d.%s%s", p.path, p.pid, ulid.Make(), workingSuffix)
	if err := os.Rename(p.path, working); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("cmdqueue: claim %s: %w", p.path, err)
	}
	return working, nil
}

// Leftovers lists working files not owned by this process.
func (p *Processor) Leftovers() ([]string, error) {
	matches, err := filepath.Glob(p.path + ".*" + workingSuffix)
	if err != nil {
		return nil, err
	}
	own := fmt.Sprintf("%s.%d.", p.path, p.pid)
	var out []string
	for _, m := range matches {
		if !strings.HasPrefix(m, own) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Process claims and dispatches one batch. Lines are executed at most once:
// a crash after the claim loses the batch rather than replaying it.
func (p *Processor) Process(ctx context.Context) (Stats, error) {
	var st Stats

	p.reportLeftovers()

	working, err := p.Claim()
	if err != nil || working == "" {
		return st, err
	}
	st.Claimed = true

	data, release, err := readClaimed(working)
	if err != nil {
		return st, err
	}
	defer release()

	for rest := data; len(rest) > 0; {
		var raw []byte
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			raw, rest = rest[:i], rest[i+1:]
		} else {
			raw, rest = rest, nil
		}

		if err := ctx.Err(); err != nil {
			p.log.WithField("file", working).Warn("shutdown while processing queue; remaining lines not executed, working file kept for inspection")
			return st, err
		}

		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		st.Lines++

		if len(line) > maxLineSize {
			err := fmt.Errorf("%w: line of %d bytes exceeds %d", ErrMalformedCommand, len(line), maxLineSize)
			st.Skipped++
			p.log.WithError(err).Warnf("skipping line %q", truncate(line, 200))
			p.observe(Command{}, err)
			continue
		}

		cmd, err := ParseLine(line)
		if err != nil {
			st.Skipped++
			p.log.WithError(err).Warnf("skipping line %q", truncate(line, 200))
			p.observe(cmd, err)
			continue
		}

		if err := p.dispatch(ctx, cmd); err != nil {
			if errors.Is(err, ErrMalformedCommand) || errors.Is(err, ErrUnknownCommand) {
				st.Skipped++
			} else {
				st.Failed++
			}
			p.log.WithError(err).WithFields(logrus.Fields{
				"device":  cmd.DeviceID,
				"command": cmd.Command,
			}).Error("command failed")
			p.observe(cmd, err)
			continue
		}

		st.Dispatched++
		p.log.WithFields(logrus.Fields{
			"device":  cmd.DeviceID,
			"command": cmd.Command,
		}).Info("command sent")
		p.observe(cmd, nil)
	}
	if err := os.Remove(working); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return st, fmt.Errorf("cmdqueue: remove %s: %w", working, err)
	}
	return st, nil
}

// readClaimed locks the working file and reads it. A producer that opened the
// queue before the rename finishes its write before the lock is granted.
// The lock is held until release so late producers see a moved file and reopen.
func readClaimed(working string) ([]byte, func(), error) {
	f, err := os.Open(working)
	if err != nil {
		return nil, nil, fmt.Errorf("cmdqueue: open %s: %w", working, err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("cmdqueue: lock %s: %w", working, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("cmdqueue: read %s: %w", working, err)
	}
	return data, func() { _ = f.Close() }, nil
}

func (p *Processor) dispatch(ctx context.Context, c Command) error {
	// validate before touching the radio
	var run func(Commander) error
	switch c.Command {
	case CommandSetWateringThresholds:
		t, err := c.Thresholds()
		if err != nil {
			return err
		}
		run = func(s Commander) error { return s.SetWateringThresholds(ctx, t) }
	case CommandControlActuator:
		l, err := c.LED()
		if err != nil {
			return err
		}
		run = func(s Commander) error { return s.ControlLED(ctx, l) }
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Command)
	}

	s, err := p.sessions(ctx, c.DeviceID)
	if err != nil {
		return err
	}
	if err := s.EnsureConnected(ctx); err != nil {
		return err
	}
	return run(s)
}

func (p *Processor) observe(c Command, err error) {
	if p.OnResult != nil {
		p.OnResult(c, err)
	}
}

func (p *Processor) reportLeftovers() {
	files, err := p.Leftovers()
	if err != nil {
		return
	}
	for _, f := range files {
		if p.warnedLeftovers[f] {
			continue
		}
		p.warnedLeftovers[f] = true
		p.log.WithField("file", f).Warn("found unprocessed working file from another instance; not replayed")
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
