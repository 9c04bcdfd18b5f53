package cmdqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rx178nwj/plant-dashboard/internal/protocol"
)

var errDeviceNotFound = errors.New("device not found")

// ---- fake session ----

type fakeSession struct {
	mu         *sync.Mutex
	id         string
	thresholds *[]string
	leds       *[]protocol.LED
	connectErr error
	connects   int
}

func (f *fakeSession) EnsureConnected(context.Context) error {
	f.connects++
	return f.connectErr
}

func (f *fakeSession) SetWateringThresholds(_ context.Context, t protocol.WateringThresholds) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.thresholds = append(*f.thresholds, fmt.Sprintf("%s:%d:%d", f.id, t.Dry, t.Wet))
	return nil
}

func (f *fakeSession) ControlLED(_ context.Context, l protocol.LED) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.leds = append(*f.leds, l)
	return nil
}

type fakeSessions struct {
	mu         sync.Mutex
	known      map[string]bool
	thresholds []string
	leds       []protocol.LED
	created    []string
}

func newFakeSessions(ids ...string) *fakeSessions {
	f := &fakeSessions{known: map[string]bool{}}
	for _, id := range ids {
		f.known[id] = true
	}
	return f
}

func (f *fakeSessions) source() SessionSource {
	return func(_ context.Context, id string) (Commander, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.known[id] {
			return nil, fmt.Errorf("%w: %s", errDeviceNotFound, id)
		}
		f.created = append(f.created, id)
		return &fakeSession{mu: &f.mu, id: id, thresholds: &f.thresholds, leds: &f.leds}, nil
	}
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeQueue(t *testing.T, path string, lines ...string) {
	t.Helper()
	var b []byte
	for _, l := range lines {
		b = append(b, l...)
		b = append(b, '\n')
	}
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

// ---- tests ----

func TestProcess_NoQueueFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	p, err := NewProcessor(path, newFakeSessions().source(), quiet())
	require.NoError(t, err)

	st, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Claimed)
}

func TestProcess_DispatchesAndSkips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.jsonl")
	writeQueue(t, path,
		`{"command":"set_watering_thresholds","device_id":"dev-1","payload":{"dry_threshold":2500,"wet_threshold":1000}}`,
		`not json`,
		`{"command":"reboot","device_id":"dev-1","payload":{}}`,
		``,
		`{"command":"control_actuator","device_id":"dev-1","payload":{"red":255,"green":0,"blue":10,"brightness":80,"duration_ms":1500}}`,
		`{"command":"set_watering_thresholds","device_id":"dev-1","payload":{"dry_threshold":70000,"wet_threshold":1}}`,
		`{"command":"set_watering_thresholds","device_id":"ghost","payload":{"dry_threshold":1,"wet_threshold":1}}`,
	)

	fs := newFakeSessions("dev-1")
	p, err := NewProcessor(path, fs.source(), quiet())
	require.NoError(t, err)

	var results []error
	p.OnResult = func(_ Command, err error) { results = append(results, err) }

	st, err := p.Process(context.Background())
	require.NoError(t, err)

	assert.True(t, st.Claimed)
	assert.Equal(t, 6, st.Lines)
	assert.Equal(t, 2, st.Dispatched)
	assert.Equal(t, 3, st.Skipped)
	assert.Equal(t, 1, st.Failed)

	assert.Equal(t, []string{"dev-1:2500:1000"}, fs.thresholds)
	require.Len(t, fs.leds, 1)
	assert.Equal(t, protocol.LED{Red: 255, Blue: 10, Brightness: 80, DurationMs: 1500}, fs.leds[0])

	require.Len(t, results, 6)
	assert.ErrorIs(t, results[1], ErrMalformedCommand)
	assert.ErrorIs(t, results[2], ErrUnknownCommand)
	assert.ErrorIs(t, results[4], ErrMalformedCommand)
	assert.ErrorIs(t, results[5], errDeviceNotFound)

	// queue and working file are gone
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	left, err := filepath.Glob(path + ".*.working")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestProcess_OversizedLineSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	huge := `{"command":"set_watering_thresholds","device_id":"dev-1","payload":{"pad":"` +
		strings.Repeat("x", 70*1024) + `"}}`
	writeQueue(t, path,
		`{"command":"set_watering_thresholds","device_id":"dev-1","payload":{"dry_threshold":1,"wet_threshold":2}}`,
		huge,
		`{"command":"set_watering_thresholds","device_id":"dev-1","payload":{"dry_threshold":3,"wet_threshold":4}}`,
	)

	fs := newFakeSessions("dev-1")
	p, err := NewProcessor(path, fs.source(), quiet())
	require.NoError(t, err)

	var results []error
	p.OnResult = func(_ Command, err error) { results = append(results, err) }

	st, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: true, Lines: 3, Dispatched: 2, Skipped: 1}, st)
	assert.Equal(t, []string{"dev-1:1:2", "dev-1:3:4"}, fs.thresholds)
	require.Len(t, results, 3)
	assert.ErrorIs(t, results[1], ErrMalformedCommand)
}

func TestProcess_ShutdownKeepsWorkingFileForNextInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	writeQueue(t, path, `{"command":"control_actuator","device_id":"dev-1","payload":{"red":1}}`)

	fs := newFakeSessions("dev-1")
	p, err := NewProcessor(path, fs.source(), quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Process(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fs.leds)

	// the same process does not report its own batch
	own, err := p.Leftovers()
	require.NoError(t, err)
	assert.Empty(t, own)

	// a restarted daemon runs under a new pid and reports it
	next, err := NewProcessor(path, fs.source(), quiet())
	require.NoError(t, err)
	next.pid = p.pid + 1
	left, err := next.Leftovers()
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestClaim_WorkingNameIsProcessUnique(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	writeQueue(t, path, `{}`)

	p, err := NewProcessor(path, newFakeSessions().source(), quiet())
	require.NoError(t, err)

	working, err := p.Claim()
	require.NoError(t, err)
	assert.Regexp(t, fmt.Sprintf(`^%s\.%d\.[0-9A-Z]{26}\.working$`, regexp.QuoteMeta(path), os.Getpid()), working)

	again, err := p.Claim()
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestLeftovers_ForeignWorkingFilesReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	foreign := path + ".1.01HZZZZZZZZZZZZZZZZZZZZZZZ.working"
	require.NoError(t, os.WriteFile(foreign, []byte("{}\n"), 0o644))

	p, err := NewProcessor(path, newFakeSessions().source(), quiet())
	require.NoError(t, err)
	p.pid = 2

	left, err := p.Leftovers()
	require.NoError(t, err)
	assert.Equal(t, []string{foreign}, left)

	// not replayed
	st, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Claimed)
	_, err = os.Stat(foreign)
	assert.NoError(t, err)
}

func TestProcess_RacingProcessorsAndProducer(t *testing.T) {
	const total = 200

	path := filepath.Join(t.TempDir(), "q.jsonl")
	fs := newFakeSessions()
	for i := 0; i < total; i++ {
		fs.known[fmt.Sprintf("dev-%d", i)] = true
	}

	p1, err := NewProcessor(path, fs.source(), quiet())
	require.NoError(t, err)
	p2, err := NewProcessor(path, fs.source(), quiet())
	require.NoError(t, err)

	ctx := context.Background()
	done := make(chan struct{})

	var wg sync.WaitGroup
	for _, p := range []*Processor{p1, p2} {
		wg.Add(1)
		go func(p *Processor) {
			defer wg.Done()
			for {
				_, err := p.Process(ctx)
				assert.NoError(t, err)
				select {
				case <-done:
					return
				default:
					time.Sleep(time.Millisecond)
				}
			}
		}(p)
	}

	for i := 0; i < total; i++ {
		c, err := NewThresholdsCommand(fmt.Sprintf("dev-%d", i), i, i)
		require.NoError(t, err)
		require.NoError(t, Append(path, c))
	}
	close(done)
	wg.Wait()

	// drain whatever the last append left behind
	_, err = p1.Process(ctx)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, s := range fs.thresholds {
		seen[s]++
	}
	assert.Len(t, seen, total)
	for i := 0; i < total; i++ {
		key := fmt.Sprintf("dev-%d:%d:%d", i, i, i)
		assert.Equal(t, 1, seen[key], key)
	}
}

func TestProcess_EnsureConnectedFailureCountsAsFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	writeQueue(t, path, `{"command":"control_actuator","device_id":"dev-1","payload":{"red":1}}`)

	src := func(context.Context, string) (Commander, error) {
		return &fakeSession{connectErr: errors.New("scan timeout")}, nil
	}
	p, err := NewProcessor(path, src, quiet())
	require.NoError(t, err)

	st, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 0, st.Dispatched)
}

func TestWatch_SignalsOnAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := Watch(ctx, path, quiet())
	require.NoError(t, err)

	c, err := NewThresholdsCommand("dev-1", 1, 2)
	require.NoError(t, err)
	require.NoError(t, Append(path, c))

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a wake-up after append")
	}
}
