package models

import "time"

// PoolEntry is a participant's membership record in the waiting pool.
// Leave flips IsActive instead of deleting, so a re-join just refreshes
// TimeJoined; only a successful pairing removes the entry outright.
type PoolEntry struct {
	Identity   string    `json:"identity"`
	TimeJoined time.Time `json:"timeJoined"`
	IsActive   bool      `json:"isActive"`
}

// Pairing records an active match between two participants. It is stored
// once under the canonical unordered key of the two identities; lookups by
// either participant resolve to the same record.
type Pairing struct {
	ParticipantA string    `json:"participantA"`
	ParticipantB string    `json:"participantB"`
	Timestamp    time.Time `json:"timestamp"`
	IsActive     bool      `json:"isActive"`
}

// Includes reports whether id is one of the pairing's participants.
func (p Pairing) Includes(id string) bool {
	return p.ParticipantA == id || p.ParticipantB == id
}
