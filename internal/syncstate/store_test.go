package syncstate

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

func newStore(t *testing.T, participants ...string) (*Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	profiles := profile.NewStatic()
	tracker := presence.NewTracker(clk, profiles, nil, 300*time.Second, 86400*time.Second)
	for _, id := range participants {
		require.NoError(t, profiles.SetOnboarded(id, true))
		require.NoError(t, tracker.Heartbeat(id))
	}
	return NewStore(clk, profiles, tracker, nil), clk
}

func TestSetState_Preconditions(t *testing.T) {
	s, _ := newStore(t, "alice")

	assert.ErrorIs(t, s.SetState("alice", "alice", models.SyncState{}), models.ErrInvalidPeer)
	assert.ErrorIs(t, s.SetState("stranger", "alice", models.SyncState{}), models.ErrNotOnboarded)
	assert.ErrorIs(t, s.SetState("alice", "stranger", models.SyncState{}), models.ErrInvalidPeer)
}

func TestSetState_SharedAcrossKeyOrderings(t *testing.T) {
	s, _ := newStore(t, "alice", "bob")

	require.NoError(t, s.SetState("alice", "bob", models.SyncState{MediaID: "m1", Version: 1}))

	state, err := s.GetState("bob", "alice")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "m1", state.MediaID)
}

func TestSetState_LastWriterWinsRegardlessOfVersion(t *testing.T) {
	s, _ := newStore(t, "alice", "bob")

	require.NoError(t, s.SetState("alice", "bob", models.SyncState{
		MediaID: "m1", Position: 40, Version: 5,
	}))
	// Equal version, different content: the store takes it anyway. Ordering
	// is the writers' concern (Watermark), not the store's.
	require.NoError(t, s.SetState("bob", "alice", models.SyncState{
		MediaID: "m1", Position: 10, Version: 5,
	}))

	state, err := s.GetState("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, float64(10), state.Position, "last writer always wins")

	// Even a lower version overwrites.
	require.NoError(t, s.SetState("alice", "bob", models.SyncState{
		MediaID: "m1", Position: 99, Version: 2,
	}))
	state, err = s.GetState("bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(99), state.Position)
	assert.Equal(t, int64(2), state.Version)
}

func TestGetState_NoDocumentIsNotAnError(t *testing.T) {
	s, _ := newStore(t, "alice", "bob")

	state, err := s.GetState("alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestCleanup_Idempotent(t *testing.T) {
	s, _ := newStore(t, "alice", "bob")
	require.NoError(t, s.SetState("alice", "bob", models.SyncState{MediaID: "m1", Version: 1}))

	require.NoError(t, s.Cleanup("bob", "alice"))
	require.NoError(t, s.Cleanup("alice", "bob"))

	state, err := s.GetState("alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestWatermark_Ordering(t *testing.T) {
	var w Watermark
	base := time.Unix(1700000000, 0)

	assert.True(t, w.Observe(models.SyncState{Version: 1, LastUpdated: base}), "first document always applies")
	assert.False(t, w.Observe(models.SyncState{Version: 1, LastUpdated: base}), "replay is rejected")
	assert.False(t, w.Observe(models.SyncState{Version: 0, LastUpdated: base.Add(time.Hour)}), "older version is rejected regardless of timestamp")
	assert.True(t, w.Observe(models.SyncState{Version: 1, LastUpdated: base.Add(time.Second)}), "equal version breaks the tie on timestamp")
	assert.True(t, w.Observe(models.SyncState{Version: 2, LastUpdated: base}), "greater version applies even with an older timestamp")

	w.Reset()
	assert.True(t, w.Observe(models.SyncState{Version: 1, LastUpdated: base}))
}
