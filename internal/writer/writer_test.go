package writer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rx178nwj/plant-dashboard/internal/advert"
	"github.com/rx178nwj/plant-dashboard/internal/poller"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
	"github.com/rx178nwj/plant-dashboard/internal/session"
	"github.com/rx178nwj/plant-dashboard/internal/status"
)

var at = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

// ---- fake destination ----

type memWriter struct {
	mu      sync.Mutex
	records []Record
	err     error
	closed  bool
}

func (m *memWriter) Write(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memWriter) Close() error { m.closed = true; return nil }

// ---- tests ----

func TestNewRecord_Success(t *testing.T) {
	rd := &protocol.Reading{DataVersion: protocol.PayloadV2, Temperature: 21}
	r := NewRecord(poller.PollResult{DeviceID: "p1", At: at, PayloadVersion: 2, Reading: rd})

	assert.Equal(t, "p1", r.DeviceID)
	assert.Equal(t, 2, r.PayloadVersion)
	assert.Same(t, rd, r.Reading)
	assert.Nil(t, r.Error)
	assert.Zero(t, r.ErrorCode)
}

func TestNewRecord_Broadcast(t *testing.T) {
	b := &advert.Reading{Model: advert.KindMeterPlus, Temperature: 24.4}
	r := NewRecord(poller.PollResult{DeviceID: "m1", At: at, Broadcast: b})
	assert.Same(t, b, r.Reading)
}

func TestNewRecord_FailureHasNullReading(t *testing.T) {
	r := NewRecord(poller.PollResult{DeviceID: "p1", At: at, PayloadVersion: 3, Err: session.ErrScanTimeout})

	require.NotNil(t, r.Error)
	assert.Equal(t, session.ErrScanTimeout.Error(), *r.Error)
	assert.Equal(t, status.CodeScanTimeout, r.ErrorCode)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Contains(t, m, "reading")
	assert.Nil(t, m["reading"])
	assert.Equal(t, float64(3), m["payload_version"])
}

func TestFileWriter_OneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.jsonl")
	fw, err := OpenFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fw.Write(ctx, NewRecord(poller.PollResult{DeviceID: "a", At: at, Reading: &protocol.Reading{}})))
	require.NoError(t, fw.Write(ctx, NewRecord(poller.PollResult{DeviceID: "b", At: at, Err: errors.New("boom")})))
	require.NoError(t, fw.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r struct {
			DeviceID string  `json:"device_id"`
			Error    *string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		ids = append(ids, r.DeviceID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestFileWriter_Stream(t *testing.T) {
	var buf bytes.Buffer
	fw := NewStream(&buf)
	require.NoError(t, fw.Write(context.Background(), Record{DeviceID: "x", Timestamp: at}))
	assert.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])
	assert.NoError(t, fw.Close())
}

func TestFanout_DeliversToAllDespiteFailure(t *testing.T) {
	bad := &memWriter{err: errors.New("disk full")}
	good := &memWriter{}
	w := Fanout().Add("bad", bad).Add("good", good).Add("nil", nil).Build()

	err := w.Write(context.Background(), Record{DeviceID: "p1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, good.records, 1)

	require.NoError(t, w.Close())
	assert.True(t, bad.closed)
	assert.True(t, good.closed)
}
