// Package matchmaking owns the waiting pool and pairing records. All map
// mutation happens under one mutex so every exported operation is atomic; no
// caller ever observes a half-updated pairing.
package matchmaking

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mossy-p/voice-match/internal/clock"
	"github.com/mossy-p/voice-match/internal/models"
	"github.com/mossy-p/voice-match/internal/profile"
	"github.com/mossy-p/voice-match/internal/redis"
)

// Presence is the activity predicate the pool consults for eligibility.
type Presence interface {
	IsActive(identity string) bool
}

// SessionCleaner tears down per-pair relay state. Cleanup of an absent
// session must succeed, which keeps Terminate idempotent.
type SessionCleaner interface {
	Cleanup(caller, peer string) error
}

type Manager struct {
	clock    clock.Clock
	profiles profile.Directory
	presence Presence
	mirror   *redis.Mirror

	activityWindow time.Duration

	signals SessionCleaner
	syncs   SessionCleaner

	mu       sync.Mutex
	pool     map[string]models.PoolEntry
	pairings map[string]models.Pairing // canonical unordered key
}

func NewManager(clk clock.Clock, profiles profile.Directory, pres Presence, mirror *redis.Mirror, activityWindow time.Duration, signals, syncs SessionCleaner) *Manager {
	return &Manager{
		clock:          clk,
		profiles:       profiles,
		presence:       pres,
		mirror:         mirror,
		activityWindow: activityWindow,
		signals:        signals,
		syncs:          syncs,
		pool:           make(map[string]models.PoolEntry),
		pairings:       make(map[string]models.Pairing),
	}
}

// Join adds the caller to the waiting pool, or refreshes their entry if it
// already exists. Idempotent.
func (m *Manager) Join(caller string) error {
	if !m.profiles.IsOnboarded(caller) {
		return models.ErrNotOnboarded
	}
	if !m.presence.IsActive(caller) {
		return models.ErrNotActive
	}

	entry := models.PoolEntry{Identity: caller, TimeJoined: m.clock.Now(), IsActive: true}

	m.mu.Lock()
	m.pool[caller] = entry
	m.mu.Unlock()

	m.mirror.Put("pool:"+caller, entry)
	return nil
}

// Leave flips the caller's pool entry inactive. The entry is kept so a
// re-join only has to flip the flag and refresh TimeJoined.
func (m *Manager) Leave(caller string) error {
	m.mu.Lock()
	entry, ok := m.pool[caller]
	if !ok {
		entry = models.PoolEntry{Identity: caller, TimeJoined: m.clock.Now()}
	}
	entry.IsActive = false
	m.pool[caller] = entry
	m.mu.Unlock()

	m.mirror.Put("pool:"+caller, entry)
	return nil
}

// IsInPool reports whether the caller currently has an active pool entry.
func (m *Manager) IsInPool(caller string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pool[caller]
	return ok && entry.IsActive
}

// FindPeer scans the pool for an eligible candidate. It returns "" when
// nobody qualifies; that is a normal empty result, not an error.
//
// Selection is deterministic: candidates are visited in sorted identity
// order and the first eligible one wins.
func (m *Manager) FindPeer(caller string) (string, error) {
	if err := m.requireWaiting(caller); err != nil {
		return "", err
	}
	return m.scan(caller), nil
}

// Pair matches the caller with peer. Both must independently pass the same
// eligibility predicate FindPeer uses; a failing peer surfaces as
// ErrInvalidPeer. On success all prior active pairings of either side are
// deactivated, one new pairing is recorded under the canonical key, and both
// pool entries are removed. Returns the pairing key.
func (m *Manager) Pair(caller, peer string) (string, error) {
	if err := m.requireWaiting(caller); err != nil {
		return "", err
	}
	if peer == caller || !m.candidateEligible(peer, caller, m.clock.Now()) {
		return "", models.ErrInvalidPeer
	}

	key := models.PairKey(caller, peer)
	pairing := models.Pairing{
		ParticipantA: caller,
		ParticipantB: peer,
		Timestamp:    m.clock.Now(),
		IsActive:     true,
	}

	m.mu.Lock()
	retired := m.deactivatePairingsLocked(caller, peer)
	m.pairings[key] = pairing
	delete(m.pool, caller)
	delete(m.pool, peer)
	m.mu.Unlock()

	for _, k := range retired {
		m.mirror.Put("pairing:"+k, m.pairingSnapshot(k))
	}
	m.mirror.Put("pairing:"+key, pairing)
	m.mirror.Del("pool:"+caller, "pool:"+peer)

	logrus.WithFields(logrus.Fields{"caller": caller, "peer": peer, "key": key}).Info("paired")
	return key, nil
}

// NextPeer skips the caller's current match: their active pairings are
// deactivated, their pool entry is restored (pairing removed it), and the
// pool is scanned again exactly like FindPeer.
func (m *Manager) NextPeer(caller string) (string, error) {
	if !m.profiles.IsOnboarded(caller) {
		return "", models.ErrNotOnboarded
	}
	if !m.presence.IsActive(caller) {
		return "", models.ErrNotActive
	}

	entry := models.PoolEntry{Identity: caller, TimeJoined: m.clock.Now(), IsActive: true}

	m.mu.Lock()
	retired := m.deactivatePairingsLocked(caller)
	m.pool[caller] = entry
	m.mu.Unlock()

	for _, k := range retired {
		m.mirror.Put("pairing:"+k, m.pairingSnapshot(k))
	}
	m.mirror.Put("pool:"+caller, entry)

	return m.scan(caller), nil
}

// Terminate ends the relationship with peer: the pairing is deactivated and
// the pair's signaling and sync sessions are deleted. Idempotent even when
// no such state exists.
func (m *Manager) Terminate(caller, peer string) error {
	key := models.PairKey(caller, peer)

	m.mu.Lock()
	if pairing, ok := m.pairings[key]; ok && pairing.IsActive {
		pairing.IsActive = false
		m.pairings[key] = pairing
	}
	m.mu.Unlock()

	m.mirror.Put("pairing:"+key, m.pairingSnapshot(key))

	if m.signals != nil {
		if err := m.signals.Cleanup(caller, peer); err != nil {
			return err
		}
	}
	if m.syncs != nil {
		if err := m.syncs.Cleanup(caller, peer); err != nil {
			return err
		}
	}
	return nil
}

// PairingBetween returns the pairing record for the two identities, if any.
func (m *Manager) PairingBetween(a, b string) (models.Pairing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pairing, ok := m.pairings[models.PairKey(a, b)]
	return pairing, ok
}

// requireWaiting is the caller-side precondition shared by FindPeer and
// Pair: in the pool, onboarded, active.
func (m *Manager) requireWaiting(caller string) error {
	if !m.IsInPool(caller) {
		return models.ErrNotInPool
	}
	if !m.profiles.IsOnboarded(caller) {
		return models.ErrNotOnboarded
	}
	if !m.presence.IsActive(caller) {
		return models.ErrNotActive
	}
	return nil
}

// candidateEligible is the predicate applied to the other side: onboarded,
// presence-active, waiting in the pool, and joined within the activity
// window.
func (m *Manager) candidateEligible(candidate, caller string, now time.Time) bool {
	if candidate == caller {
		return false
	}

	m.mu.Lock()
	entry, ok := m.pool[candidate]
	m.mu.Unlock()

	if !ok || !entry.IsActive {
		return false
	}
	if now.Sub(entry.TimeJoined) > m.activityWindow {
		return false
	}
	return m.profiles.IsOnboarded(candidate) && m.presence.IsActive(candidate)
}

func (m *Manager) scan(caller string) string {
	now := m.clock.Now()

	m.mu.Lock()
	ids := make([]string, 0, len(m.pool))
	for id := range m.pool {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		if m.candidateEligible(id, caller, now) {
			return id
		}
	}
	return ""
}

// deactivatePairingsLocked retires every active pairing involving any of the
// given identities and returns the affected keys. Caller holds m.mu.
func (m *Manager) deactivatePairingsLocked(identities ...string) []string {
	var keys []string
	for key, pairing := range m.pairings {
		if !pairing.IsActive {
			continue
		}
		for _, id := range identities {
			if pairing.Includes(id) {
				pairing.IsActive = false
				m.pairings[key] = pairing
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

func (m *Manager) pairingSnapshot(key string) models.Pairing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairings[key]
}
