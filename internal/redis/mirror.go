package redis

import (
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Mirror is a best-effort write-through copy of store state for durability
// across restarts. The in-memory maps stay authoritative; a Redis failure is
// logged, never surfaced to the caller.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMirror wraps client with a value TTL. A nil client produces a no-op
// mirror, which is what tests use.
func NewMirror(client *redis.Client, ttl time.Duration) *Mirror {
	return &Mirror{client: client, ttl: ttl}
}

// Put marshals value to JSON and stores it under key with the mirror TTL.
func (m *Mirror) Put(key string, value any) {
	if m == nil || m.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("mirror: marshal failed")
		return
	}
	if err := m.client.Set(ctx, key, data, m.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("mirror: set failed")
	}
}

// Del removes keys from the mirror.
func (m *Mirror) Del(keys ...string) {
	if m == nil || m.client == nil || len(keys) == 0 {
		return
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		logrus.WithError(err).Warn("mirror: del failed")
	}
}
