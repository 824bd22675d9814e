package profile

import (
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	redisclient "github.com/mossy-p/voice-match/internal/redis"
)

type record struct {
	Onboarded bool     `json:"onboarded"`
	Roles     []string `json:"roles,omitempty"`
}

// Redis is a Directory backed by the shared profile keys. The profile store
// itself is owned by another service; this side only reads it, except for the
// demo login path which marks onboarding complete.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) load(identity string) (record, bool) {
	data, err := r.client.Get(redisclient.GetContext(), "profile:"+identity).Result()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).WithField("identity", identity).Warn("profile lookup failed")
		}
		return record{}, false
	}
	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		logrus.WithError(err).WithField("identity", identity).Warn("profile record corrupt")
		return record{}, false
	}
	return rec, true
}

func (r *Redis) IsOnboarded(identity string) bool {
	rec, ok := r.load(identity)
	return ok && rec.Onboarded
}

func (r *Redis) HasRole(identity, role string) bool {
	rec, ok := r.load(identity)
	if !ok {
		return false
	}
	for _, have := range rec.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// SetOnboarded flips the onboarding flag, creating the record if needed.
func (r *Redis) SetOnboarded(identity string, done bool) error {
	rec, _ := r.load(identity)
	rec.Onboarded = done
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(redisclient.GetContext(), "profile:"+identity, data, 0).Err()
}
