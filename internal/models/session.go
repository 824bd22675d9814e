package models

import (
	"strings"
	"time"
)

// SignalingSession is the store-and-forward mailbox for one handshake.
// Candidates are append-only in insertion order. A session may hold only
// candidates with no offer yet (candidates can arrive first).
type SignalingSession struct {
	ParticipantA string    `json:"participantA"`
	ParticipantB string    `json:"participantB"`
	Offer        string    `json:"offer,omitempty"`
	Answer       string    `json:"answer,omitempty"`
	Candidates   []string  `json:"candidates"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// Includes reports whether id is one of the session's participants.
func (s SignalingSession) Includes(id string) bool {
	return s.ParticipantA == id || s.ParticipantB == id
}

// SyncState is the shared playback-state document for a paired session.
// The store overwrites it unconditionally; ordering is enforced by each
// reader's Watermark using (Version, LastUpdated) last-write-wins.
type SyncState struct {
	MediaID     string    `json:"mediaId"`
	Position    float64   `json:"position"`
	IsPlaying   bool      `json:"isPlaying"`
	Version     int64     `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// SyncSession wraps a SyncState with its participant gating.
type SyncSession struct {
	ParticipantA string    `json:"participantA"`
	ParticipantB string    `json:"participantB"`
	State        SyncState `json:"state"`
}

// Includes reports whether id is one of the session's participants.
func (s SyncSession) Includes(id string) bool {
	return s.ParticipantA == id || s.ParticipantB == id
}

// PairKey returns the canonical unordered key for a pair of identities.
// Sorting before joining means (a,b) and (b,a) address the same record,
// which removes the probe-both-orderings lookup entirely.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}
