package tabs

import "github.com/marcus/notedeck/internal/event"

// GoBack steps the focused tab one session back in its history. Stale
// stack entries (session gone, or its note deleted) are pruned and the
// walk continues. Returns false when no restorable session remains.
func (s *Store) GoBack() bool {
	return s.step(true)
}

// GoForward mirrors GoBack in the other direction.
func (s *Store) GoForward() bool {
	return s.step(false)
}

func (s *Store) step(back bool) bool {
	s.mu.Lock()
	tab, ok := s.tabByID(s.current)
	if !ok {
		s.mu.Unlock()
		return false
	}

	from, to := &tab.ForwardStack, &tab.BackStack
	if back {
		from, to = &tab.BackStack, &tab.ForwardStack
	}

	for len(*from) > 0 {
		sid := (*from)[len(*from)-1]
		*from = (*from)[:len(*from)-1]

		session, ok := s.resolveSession(sid)
		if !ok {
			s.deleteSession(sid)
			continue
		}

		*to = append(*to, tab.Session.ID)
		events := s.applySessionLocked(tab, session, true)
		s.snapshotLocked()
		s.mu.Unlock()
		s.publish(events)
		return true
	}

	s.recomputeNav()
	s.snapshotLocked()
	s.mu.Unlock()
	return false
}

// LoadSession restores a persisted session into the focused tab.
// Returns false when the session is unknown or its note no longer
// exists; the caller decides what to show instead.
func (s *Store) LoadSession(sessionID string) bool {
	s.mu.Lock()
	tab, ok := s.tabByID(s.current)
	if !ok {
		s.mu.Unlock()
		return false
	}
	session, ok := s.resolveSession(sessionID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	events := s.applySessionLocked(tab, session, true)
	s.snapshotLocked()
	s.mu.Unlock()
	s.publish(events)
	return true
}

// resolveSession fetches a session and re-derives its locked/readonly
// flags from the note's current state; the note may have changed since
// the session was captured. Sessions whose note was deleted do not
// resolve.
func (s *Store) resolveSession(id string) (Session, bool) {
	session, ok, err := s.store.GetSession(id)
	if err != nil {
		s.logger.Warn("session lookup failed", "session", id, "err", err)
		return Session{}, false
	}
	if !ok {
		return Session{}, false
	}
	if session.NoteID != "" {
		info := s.notes.NoteState(session.NoteID)
		if !info.Exists {
			return Session{}, false
		}
		session.Locked = info.Locked
		session.NoteLocked = info.Locked
		session.Readonly = info.Readonly
	}
	return session, true
}

func (s *Store) applySessionLocked(tab *Tab, session Session, restored bool) []pending {
	tab.Session = session
	tab.NoteID = session.NoteID
	tab.Edited = false
	s.persistSession(session)
	s.recomputeNav()
	return []pending{{event.TabsChanged, nil}, {event.LoadNote, LoadRequest{
		TabID:    tab.ID,
		NoteID:   session.NoteID,
		Session:  session,
		Restored: restored,
	}}}
}

func (s *Store) recomputeNav() {
	tab, ok := s.tabByID(s.current)
	if !ok {
		s.canGoBack, s.canGoForward = false, false
		return
	}
	s.canGoBack = len(tab.BackStack) > 0
	s.canGoForward = len(tab.ForwardStack) > 0
}

// CanGoBack reports whether the focused tab has back history.
func (s *Store) CanGoBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canGoBack
}

// CanGoForward reports whether the focused tab has forward history.
func (s *Store) CanGoForward() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canGoForward
}

// CurrentTabID returns the focused tab's id.
func (s *Store) CurrentTabID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentNoteID returns the note shown in the focused tab, "" for an
// empty tab.
func (s *Store) CurrentNoteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tab, ok := s.tabByID(s.current); ok {
		return tab.NoteID
	}
	return ""
}

// Tab returns a copy of the tab with the given id.
func (s *Store) Tab(id int) (Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tab, ok := s.tabByID(id); ok {
		return *tab, true
	}
	return Tab{}, false
}

// Tabs returns the tab list in display order.
func (s *Store) Tabs() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tab, len(s.tabs))
	for i, t := range s.tabs {
		out[i] = *t
	}
	return out
}

// NoteIDForTab returns the note a tab is showing.
func (s *Store) NoteIDForTab(id int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tab, ok := s.tabByID(id); ok {
		return tab.NoteID, true
	}
	return "", false
}

// TabForNote returns the first tab showing the note, preferring the
// focused one.
func (s *Store) TabForNote(noteID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tab, ok := s.tabByID(s.current); ok && tab.NoteID == noteID && noteID != "" {
		return tab.ID, true
	}
	for _, t := range s.tabs {
		if t.NoteID == noteID && noteID != "" {
			return t.ID, true
		}
	}
	return 0, false
}

// TabsForNote returns every tab showing the note.
func (s *Store) TabsForNote(noteID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for _, t := range s.tabs {
		if t.NoteID == noteID && noteID != "" {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// HasTabForNote reports whether any open tab shows the note.
func (s *Store) HasTabForNote(noteID string) bool {
	ids := s.TabsForNote(noteID)
	return len(ids) > 0
}
