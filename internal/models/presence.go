package models

import "time"

// PresenceRecord tracks the last heartbeat seen from a participant.
type PresenceRecord struct {
	Identity   string    `json:"identity"`
	LastActive time.Time `json:"lastActive"`
}
