package matchmaking

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/voice-match/internal/models"
	"github.com/mossy-p/voice-match/internal/presence"
	"github.com/mossy-p/voice-match/internal/profile"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingCleaner struct {
	calls [][2]string
}

func (r *recordingCleaner) Cleanup(caller, peer string) error {
	r.calls = append(r.calls, [2]string{caller, peer})
	return nil
}

const activityWindow = 300 * time.Second

type fixture struct {
	clk      *fakeClock
	profiles *profile.Static
	tracker  *presence.Tracker
	manager  *Manager
	signals  *recordingCleaner
	syncs    *recordingCleaner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	profiles := profile.NewStatic()
	tracker := presence.NewTracker(clk, profiles, nil, activityWindow, 86400*time.Second)
	signals := &recordingCleaner{}
	syncs := &recordingCleaner{}
	manager := NewManager(clk, profiles, tracker, nil, activityWindow, signals, syncs)
	return &fixture{clk: clk, profiles: profiles, tracker: tracker, manager: manager, signals: signals, syncs: syncs}
}

// enroll onboards, heartbeats, and joins a participant.
func (f *fixture) enroll(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.profiles.SetOnboarded(id, true))
	require.NoError(t, f.tracker.Heartbeat(id))
	require.NoError(t, f.manager.Join(id))
}

func TestJoin_Preconditions(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.manager.Join("alice"), models.ErrNotOnboarded)

	require.NoError(t, f.profiles.SetOnboarded("alice", true))
	assert.ErrorIs(t, f.manager.Join("alice"), models.ErrNotActive)

	require.NoError(t, f.tracker.Heartbeat("alice"))
	assert.NoError(t, f.manager.Join("alice"))
	assert.True(t, f.manager.IsInPool("alice"))

	// Idempotent
	assert.NoError(t, f.manager.Join("alice"))
}

func TestLeave_KeepsEntryForRejoin(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")

	require.NoError(t, f.manager.Leave("alice"))
	assert.False(t, f.manager.IsInPool("alice"))

	require.NoError(t, f.manager.Join("alice"))
	assert.True(t, f.manager.IsInPool("alice"))
}

func TestFindPeer_ReturnsWaitingParticipant(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")
	f.enroll(t, "bob")

	peer, err := f.manager.FindPeer("bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", peer)
}

func TestFindPeer_EmptyPoolIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")

	peer, err := f.manager.FindPeer("alice")
	require.NoError(t, err)
	assert.Empty(t, peer, "no eligible peer is a normal empty result")
}

func TestFindPeer_CallerPreconditions(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.FindPeer("alice")
	assert.ErrorIs(t, err, models.ErrNotInPool)
}

func TestFindPeer_ExcludesStalePresence(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")

	f.clk.Advance(301 * time.Second)
	f.enroll(t, "bob")

	peer, err := f.manager.FindPeer("bob")
	require.NoError(t, err)
	assert.Empty(t, peer, "a 301s-old heartbeat must exclude alice")
}

func TestFindPeer_ExcludesStalePoolEntries(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")

	f.clk.Advance(200 * time.Second)
	require.NoError(t, f.tracker.Heartbeat("alice")) // presence fresh, pool entry aging
	f.clk.Advance(150 * time.Second)                 // entry now 350s old

	f.enroll(t, "bob")
	peer, err := f.manager.FindPeer("bob")
	require.NoError(t, err)
	assert.Empty(t, peer)
}

func TestPair_SymmetricAndExclusive(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")
	f.enroll(t, "bob")
	f.enroll(t, "carol")

	key, err := f.manager.Pair("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.PairKey("alice", "bob"), key)

	// Symmetric: lookup succeeds from both directions.
	ab, ok := f.manager.PairingBetween("alice", "bob")
	require.True(t, ok)
	assert.True(t, ab.IsActive)
	ba, ok := f.manager.PairingBetween("bob", "alice")
	require.True(t, ok)
	assert.True(t, ba.IsActive)

	// Pairing removes both from the waiting pool.
	assert.False(t, f.manager.IsInPool("alice"))
	assert.False(t, f.manager.IsInPool("bob"))

	// Re-pairing bob with carol deactivates the alice-bob pairing.
	require.NoError(t, f.manager.Join("bob"))
	_, err = f.manager.Pair("bob", "carol")
	require.NoError(t, err)

	old, ok := f.manager.PairingBetween("alice", "bob")
	require.True(t, ok)
	assert.False(t, old.IsActive, "at most one active pairing per participant")
	current, ok := f.manager.PairingBetween("bob", "carol")
	require.True(t, ok)
	assert.True(t, current.IsActive)
}

func TestPair_IneligiblePeer(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")

	_, err := f.manager.Pair("alice", "ghost")
	assert.ErrorIs(t, err, models.ErrInvalidPeer)

	_, err = f.manager.Pair("alice", "alice")
	assert.ErrorIs(t, err, models.ErrInvalidPeer)
}

func TestNextPeer_SkipsCurrentMatch(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")
	f.enroll(t, "bob")
	f.enroll(t, "carol")

	_, err := f.manager.Pair("alice", "bob")
	require.NoError(t, err)

	peer, err := f.manager.NextPeer("alice")
	require.NoError(t, err)
	assert.Equal(t, "carol", peer)

	old, ok := f.manager.PairingBetween("alice", "bob")
	require.True(t, ok)
	assert.False(t, old.IsActive)
	assert.True(t, f.manager.IsInPool("alice"), "skipping restores the caller's pool entry")
}

func TestTerminate_CleansRelayStateAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice")
	f.enroll(t, "bob")

	_, err := f.manager.Pair("alice", "bob")
	require.NoError(t, err)

	require.NoError(t, f.manager.Terminate("alice", "bob"))
	pairing, ok := f.manager.PairingBetween("alice", "bob")
	require.True(t, ok)
	assert.False(t, pairing.IsActive)
	assert.Equal(t, [][2]string{{"alice", "bob"}}, f.signals.calls)
	assert.Equal(t, [][2]string{{"alice", "bob"}}, f.syncs.calls)

	// No pairing, no sessions: still succeeds.
	require.NoError(t, f.manager.Terminate("alice", "bob"))
	require.NoError(t, f.manager.Terminate("alice", "stranger"))
}
