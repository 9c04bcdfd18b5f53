// internal/writer/redis.go
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// redisClient is the subset of *redis.Client the writer uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisConfig configures RedisWriter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	// ListKey is a format string taking the device id, e.g. "plant:%s:readings".
	// Empty disables the per-device backlog list.
	ListKey string
	ListMax int64

	// BreakerFailures consecutive publish failures open the breaker for
	// BreakerCooldown; writes fail fast meanwhile. Zero uses 5 and 30s.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// RedisWriter publishes each record and keeps a capped per-device backlog.
type RedisWriter struct {
	cfg     RedisConfig
	client  redisClient
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     logrus.FieldLogger
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, cfg RedisConfig, log logrus.FieldLogger) (*RedisWriter, error) {
	if cfg.Addr == "" {
		return nil, errors.New("writer: redis addr required")
	}
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("writer: redis ping %s: %w", cfg.Addr, err)
	}
	return newRedisWriter(cfg, c, log), nil
}

func newRedisWriter(cfg RedisConfig, c redisClient, log logrus.FieldLogger) *RedisWriter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}

	w := &RedisWriter{cfg: cfg, client: c, log: log}
	w.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "redis:" + cfg.Addr,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("redis sink breaker state change")
		},
	})
	return w
}

func (w *RedisWriter) listKey(deviceID string) string {
	if strings.Contains(w.cfg.ListKey, "%s") {
		return fmt.Sprintf(w.cfg.ListKey, deviceID)
	}
	return w.cfg.ListKey + ":" + deviceID
}

// Write publishes r. Backlog failures are logged, not returned.
func (w *RedisWriter) Write(ctx context.Context, r Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("writer: encode record: %w", err)
	}

	if w.cfg.Channel != "" {
		_, err := w.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, w.client.Publish(ctx, w.cfg.Channel, body).Err()
		})
		if err != nil {
			return fmt.Errorf("writer: redis publish %s: %w", w.cfg.Channel, err)
		}
	}

	if w.cfg.ListKey == "" {
		return nil
	}
	key := w.listKey(r.DeviceID)
	if err := w.client.LPush(ctx, key, body).Err(); err != nil {
		w.log.WithError(err).WithField("key", key).Warn("redis backlog push failed")
		return nil
	}
	if w.cfg.ListMax > 0 {
		if err := w.client.LTrim(ctx, key, 0, w.cfg.ListMax-1).Err(); err != nil {
			w.log.WithError(err).WithField("key", key).Warn("redis backlog trim failed")
		}
	}
	return nil
}

func (w *RedisWriter) Close() error { return w.client.Close() }
