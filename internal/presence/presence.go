// Package presence tracks last-seen heartbeats. Every other component judges
// participant activity through this tracker.
package presence

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mossy-p/voice-match/internal/clock"
	"github.com/mossy-p/voice-match/internal/models"
	"github.com/mossy-p/voice-match/internal/profile"
	"github.com/mossy-p/voice-match/internal/redis"
)

// RoleAdmin may run the inactivity purge sweep.
const RoleAdmin = "admin"

type Tracker struct {
	clock    clock.Clock
	profiles profile.Directory
	mirror   *redis.Mirror

	// activityWindow marks a participant "active"; purgeWindow is the much
	// larger threshold for deleting stale records. Two different constants.
	activityWindow time.Duration
	purgeWindow    time.Duration

	mu      sync.Mutex
	records map[string]models.PresenceRecord
}

func NewTracker(clk clock.Clock, profiles profile.Directory, mirror *redis.Mirror, activityWindow, purgeWindow time.Duration) *Tracker {
	return &Tracker{
		clock:          clk,
		profiles:       profiles,
		mirror:         mirror,
		activityWindow: activityWindow,
		purgeWindow:    purgeWindow,
		records:        make(map[string]models.PresenceRecord),
	}
}

// Heartbeat upserts the caller's last-active timestamp. Only onboarded
// participants may report presence.
func (t *Tracker) Heartbeat(identity string) error {
	if !t.profiles.IsOnboarded(identity) {
		return models.ErrUnauthorized
	}

	rec := models.PresenceRecord{Identity: identity, LastActive: t.clock.Now()}

	t.mu.Lock()
	t.records[identity] = rec
	t.mu.Unlock()

	t.mirror.Put("presence:"+identity, rec)
	return nil
}

// IsActive reports whether identity heartbeated within the activity window.
func (t *Tracker) IsActive(identity string) bool {
	t.mu.Lock()
	rec, ok := t.records[identity]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return t.clock.Now().Sub(rec.LastActive) <= t.activityWindow
}

// ActiveCount counts participants within the activity window. Public,
// unauthenticated read.
func (t *Tracker) ActiveCount() int {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, rec := range t.records {
		if now.Sub(rec.LastActive) <= t.activityWindow {
			count++
		}
	}
	return count
}

// PurgeInactive deletes records whose last heartbeat is older than the purge
// window (24h, not the 300s activity window). Privileged sweep; returns the
// number of records removed.
func (t *Tracker) PurgeInactive(caller string) (int, error) {
	if !t.profiles.HasRole(caller, RoleAdmin) {
		return 0, models.ErrUnauthorized
	}

	now := t.clock.Now()

	t.mu.Lock()
	var stale []string
	for id, rec := range t.records {
		if now.Sub(rec.LastActive) > t.purgeWindow {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(t.records, id)
	}
	t.mu.Unlock()

	keys := make([]string, len(stale))
	for i, id := range stale {
		keys[i] = "presence:" + id
	}
	t.mirror.Del(keys...)

	if len(stale) > 0 {
		logrus.WithFields(logrus.Fields{"purged": len(stale), "by": caller}).Info("presence purge")
	}
	return len(stale), nil
}
