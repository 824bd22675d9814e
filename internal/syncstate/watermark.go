package syncstate

import (
	"sync"

	"github.com/mossy-p/voice-match/internal/models"
)

// Watermark is each writer's local last-write-wins filter. An incoming
// document is applied only when its version is strictly greater than the
// watermark, or the versions tie and its timestamp is newer. Equal versions
// do not occur by construction between two well-behaved writers, but a
// restarting client can replay one.
type Watermark struct {
	mu          sync.Mutex
	version     int64
	lastUpdated int64 // unix nanos of the last applied document
	seen        bool
}

// Observe decides whether state advances past the watermark and, if so,
// records it. Returns true when the caller should apply the document.
func (w *Watermark) Observe(state models.SyncState) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := state.LastUpdated.UnixNano()
	if w.seen {
		if state.Version < w.version {
			return false
		}
		if state.Version == w.version && ts <= w.lastUpdated {
			return false
		}
	}
	w.version = state.Version
	w.lastUpdated = ts
	w.seen = true
	return true
}

// Reset clears the watermark, e.g. when a new session begins.
func (w *Watermark) Reset() {
	w.mu.Lock()
	w.version, w.lastUpdated, w.seen = 0, 0, false
	w.mu.Unlock()
}
