// Package syncstate relays a shared playback-state document between two
// participants. The store itself overwrites unconditionally; version and
// timestamp ordering is enforced on the reading side by a Watermark, so a
// stale document is filtered where it is applied, not where it is stored.
package syncstate

import (
	"sync"

	"github.com/mossy-p/voice-match/internal/clock"
	"github.com/mossy-p/voice-match/internal/models"
	"github.com/mossy-p/voice-match/internal/profile"
	"github.com/mossy-p/voice-match/internal/redis"
)

// Presence is the activity predicate used for write eligibility.
type Presence interface {
	IsActive(identity string) bool
}

type Store struct {
	clock    clock.Clock
	profiles profile.Directory
	presence Presence
	mirror   *redis.Mirror

	mu       sync.Mutex
	sessions map[string]*models.SyncSession
}

func NewStore(clk clock.Clock, profiles profile.Directory, pres Presence, mirror *redis.Mirror) *Store {
	return &Store{
		clock:    clk,
		profiles: profiles,
		presence: pres,
		mirror:   mirror,
		sessions: make(map[string]*models.SyncSession),
	}
}

// SetState overwrites the pair's document. No version check happens here:
// the last writer always wins, and each reader's Watermark decides whether
// to apply what it reads.
func (s *Store) SetState(caller, peer string, state models.SyncState) error {
	if caller == peer {
		return models.ErrInvalidPeer
	}
	if !s.profiles.IsOnboarded(caller) {
		return models.ErrNotOnboarded
	}
	if !s.presence.IsActive(caller) {
		return models.ErrNotActive
	}
	if !s.profiles.IsOnboarded(peer) || !s.presence.IsActive(peer) {
		return models.ErrInvalidPeer
	}

	key := models.PairKey(caller, peer)
	if state.LastUpdated.IsZero() {
		state.LastUpdated = s.clock.Now()
	}

	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok {
		session = &models.SyncSession{ParticipantA: caller, ParticipantB: peer}
		s.sessions[key] = session
	} else if !session.Includes(caller) {
		s.mu.Unlock()
		return models.ErrUnauthorized
	}
	session.State = state
	snapshot := *session
	s.mu.Unlock()

	s.mirror.Put("sync:"+key, snapshot)
	return nil
}

// GetState returns the pair's document, or nil when none exists yet.
func (s *Store) GetState(caller, peer string) (*models.SyncState, error) {
	key := models.PairKey(caller, peer)

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	if !session.Includes(caller) {
		return nil, models.ErrUnauthorized
	}
	state := session.State
	return &state, nil
}

// Cleanup deletes the pair's document; absent documents delete cleanly.
func (s *Store) Cleanup(caller, peer string) error {
	key := models.PairKey(caller, peer)

	s.mu.Lock()
	session, ok := s.sessions[key]
	if ok && !session.Includes(caller) {
		s.mu.Unlock()
		return models.ErrUnauthorized
	}
	delete(s.sessions, key)
	s.mu.Unlock()

	s.mirror.Del("sync:" + key)
	return nil
}
