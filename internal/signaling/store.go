// Package signaling is the store-and-forward mailbox for the handshake
// payload between two paired participants. Sessions are addressed by the
// canonical unordered key of the two identities, so either side reaches the
// same record regardless of who writes first.
package signaling

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

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
	sessions map[string]*models.SignalingSession
}

func NewStore(clk clock.Clock, profiles profile.Directory, pres Presence, mirror *redis.Mirror) *Store {
	return &Store{
		clock:    clk,
		profiles: profiles,
		presence: pres,
		mirror:   mirror,
		sessions: make(map[string]*models.SignalingSession),
	}
}

// CreateOffer starts a fresh session for the pair, overwriting anything that
// was there before. Both sides must be onboarded and active.
func (s *Store) CreateOffer(caller, peer, offer string) error {
	if err := s.requireEligible(caller, peer); err != nil {
		return err
	}

	key := models.PairKey(caller, peer)
	session := &models.SignalingSession{
		ParticipantA: caller,
		ParticipantB: peer,
		Offer:        offer,
		Candidates:   []string{},
		LastUpdated:  s.clock.Now(),
	}

	s.mu.Lock()
	s.sessions[key] = session
	s.mu.Unlock()

	s.mirror.Put("signal:"+key, session)
	logrus.WithFields(logrus.Fields{"caller": caller, "peer": peer}).Debug("offer stored")
	return nil
}

// SendAnswer records the callee's answer. The session must already hold an
// offer; answering into the void is ErrNoOfferFound.
func (s *Store) SendAnswer(caller, peer, answer string) error {
	key := models.PairKey(caller, peer)

	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok || session.Offer == "" {
		s.mu.Unlock()
		return models.ErrNoOfferFound
	}
	if !session.Includes(caller) {
		s.mu.Unlock()
		return models.ErrUnauthorized
	}
	session.Answer = answer
	session.LastUpdated = s.clock.Now()
	snapshot := *session
	s.mu.Unlock()

	s.mirror.Put("signal:"+key, snapshot)
	return nil
}

// ExchangeCandidate appends to the session's candidate list, lazily creating
// a candidates-only session when neither side has written yet. Insertion
// order is preserved.
func (s *Store) ExchangeCandidate(caller, peer, candidate string) error {
	if peer == caller {
		return models.ErrInvalidPeer
	}
	key := models.PairKey(caller, peer)

	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok {
		session = &models.SignalingSession{
			ParticipantA: caller,
			ParticipantB: peer,
			Candidates:   []string{},
		}
		s.sessions[key] = session
	} else if !session.Includes(caller) {
		s.mu.Unlock()
		return models.ErrUnauthorized
	}
	session.Candidates = append(session.Candidates, candidate)
	session.LastUpdated = s.clock.Now()
	snapshot := *session
	s.mu.Unlock()

	s.mirror.Put("signal:"+key, snapshot)
	return nil
}

// State returns a copy of the pair's session, or nil when none exists yet
// (a normal empty result). A session stored under the caller's key but
// naming different participants should not occur given key derivation; it is
// still rejected defensively.
func (s *Store) State(caller, peer string) (*models.SignalingSession, error) {
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

	out := *session
	out.Candidates = append([]string(nil), session.Candidates...)
	return &out, nil
}

// Cleanup deletes the pair's session. Deleting an absent session succeeds,
// so cleanup can run on every exit path without bookkeeping.
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

	s.mirror.Del("signal:" + key)
	return nil
}

func (s *Store) requireEligible(caller, peer string) error {
	if peer == caller {
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
	return nil
}

// LastUpdated reports the session's update watermark without copying the
// candidate list; the websocket watch loop polls this cheaply.
func (s *Store) LastUpdated(caller, peer string) (time.Time, bool) {
	key := models.PairKey(caller, peer)

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[key]
	if !ok || !session.Includes(caller) {
		return time.Time{}, false
	}
	return session.LastUpdated, true
}
