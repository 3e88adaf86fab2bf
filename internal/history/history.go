// Package history tracks per-note editing session timestamps.
//
// A "session" groups edits into a single version-history entry. Edits
// within the window share a timestamp; the first edit after the window
// expires starts a new one.
package history

import (
	"sync"
	"time"
)

// Window is how long a session stays current without being renewed.
const Window = 5 * time.Minute

// Sessions maps note IDs to their current session timestamp (unix ms).
// Purely in-memory; note version history itself is persisted through the
// note store, not here.
type Sessions struct {
	mu     sync.Mutex
	stamps map[string]int64
	now    func() time.Time
}

// New creates an empty session tracker.
func New() *Sessions {
	return &Sessions{
		stamps: make(map[string]int64),
		now:    time.Now,
	}
}

// SetClock overrides the clock source. Intended for tests.
func (s *Sessions) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns the current session timestamp for a note. If the stored
// timestamp is older than Window (or absent), it is refreshed to now
// first; the refreshed value is stored and returned.
func (s *Sessions) Get(noteID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	stamp, ok := s.stamps[noteID]
	if !ok || now-stamp >= Window.Milliseconds() {
		stamp = now
		s.stamps[noteID] = stamp
	}
	return stamp
}

// NewSession unconditionally stamps now for the note and returns it.
// Used when opening a note, or when an invalid/empty content payload
// must not be folded into the note's current history entry.
func (s *Sessions) NewSession(noteID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().UnixMilli()
	s.stamps[noteID] = stamp
	return stamp
}

// ClearSession removes tracking for a note.
func (s *Sessions) ClearSession(noteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stamps, noteID)
}
