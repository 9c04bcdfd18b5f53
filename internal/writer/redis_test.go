package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	published map[string][][]byte
	lists     map[string][][]byte
	trims     []int64
	pubCalls  int
	pubErr    error
	pushErr   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{published: map[string][][]byte{}, lists: map[string][][]byte{}}
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.pubCalls++
	cmd := redis.NewIntCmd(ctx)
	if f.pubErr != nil {
		cmd.SetErr(f.pubErr)
		return cmd
	}
	f.published[channel] = append(f.published[channel], message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.pushErr != nil {
		cmd.SetErr(f.pushErr)
		return cmd
	}
	for _, v := range values {
		f.lists[key] = append([][]byte{v.([]byte)}, f.lists[key]...)
	}
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeRedis) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trims = append(f.trims, stop)
	if int64(len(f.lists[key])) > stop+1 {
		f.lists[key] = f.lists[key][start : stop+1]
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Close() error { return nil }

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestRedisWriter_PublishAndCappedList(t *testing.T) {
	fr := newFakeRedis()
	w := newRedisWriter(RedisConfig{Channel: "plant:readings", ListKey: "plant:%s:readings", ListMax: 2}, fr, quietLog())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(ctx, Record{DeviceID: "p1"}))
	}

	assert.Len(t, fr.published["plant:readings"], 3)
	assert.Len(t, fr.lists["plant:p1:readings"], 2)
	assert.Equal(t, []int64{1, 1, 1}, fr.trims)
}

func TestRedisWriter_ListKeyWithoutVerb(t *testing.T) {
	fr := newFakeRedis()
	w := newRedisWriter(RedisConfig{ListKey: "plant"}, fr, quietLog())

	require.NoError(t, w.Write(context.Background(), Record{DeviceID: "m1"}))
	assert.Len(t, fr.lists["plant:m1"], 1)
	assert.Empty(t, fr.published)
}

func TestRedisWriter_PublishErrorReturned(t *testing.T) {
	fr := newFakeRedis()
	fr.pubErr = errors.New("conn refused")
	w := newRedisWriter(RedisConfig{Channel: "c"}, fr, quietLog())

	err := w.Write(context.Background(), Record{DeviceID: "p1"})
	assert.ErrorIs(t, err, fr.pubErr)
}

func TestRedisWriter_BacklogErrorOnlyLogged(t *testing.T) {
	fr := newFakeRedis()
	fr.pushErr = errors.New("OOM")
	w := newRedisWriter(RedisConfig{Channel: "c", ListKey: "k"}, fr, quietLog())

	assert.NoError(t, w.Write(context.Background(), Record{DeviceID: "p1"}))
	assert.Len(t, fr.published["c"], 1)
}

func TestRedisWriter_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	fr := newFakeRedis()
	fr.pubErr = errors.New("conn refused")
	w := newRedisWriter(RedisConfig{Channel: "c", BreakerFailures: 2, BreakerCooldown: time.Hour}, fr, quietLog())

	ctx := context.Background()
	require.Error(t, w.Write(ctx, Record{DeviceID: "p1"}))
	require.Error(t, w.Write(ctx, Record{DeviceID: "p1"}))

	err := w.Write(ctx, Record{DeviceID: "p1"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, fr.pubCalls, "open breaker must not reach redis")
}
