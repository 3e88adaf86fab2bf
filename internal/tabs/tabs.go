// Package tabs implements the ordered collection of open document tabs:
// focus tracking, pinning, preview-tab reuse, per-tab back/forward
// navigation over persisted sessions, and restore-on-relaunch.
package tabs

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/marcus/notedeck/internal/event"
)

// Session is a snapshot of what a tab was showing at one point in its
// navigation history: which note, where the cursor and scroll were, and
// the note's permission state at capture time. Sessions are persisted
// individually so back/forward can restore them across restarts.
type Session struct {
	ID            string `json:"id"`
	NoteID        string `json:"noteId,omitempty"`
	ScrollTop     int    `json:"scrollTop,omitempty"`
	SelectionFrom int    `json:"selectionFrom,omitempty"`
	SelectionTo   int    `json:"selectionTo,omitempty"`
	Locked        bool   `json:"locked,omitempty"`
	NoteLocked    bool   `json:"noteLocked,omitempty"`
	Readonly      bool   `json:"readonly,omitempty"`
}

// Tab is one open document slot. A tab accumulates a linear history of
// sessions as the user navigates within it; the stacks hold session ids.
type Tab struct {
	ID           int      `json:"id"`
	NoteID       string   `json:"noteId,omitempty"`
	Pinned       bool     `json:"pinned,omitempty"`
	Preview      bool     `json:"preview,omitempty"`
	Edited       bool     `json:"edited,omitempty"`
	Session      Session  `json:"session"`
	BackStack    []string `json:"backStack,omitempty"`
	ForwardStack []string `json:"forwardStack,omitempty"`
}

// Snapshot is the persisted tab-list layout.
type Snapshot struct {
	Tabs         []Tab `json:"tabs"`
	CurrentTab   int   `json:"currentTab"`
	FocusHistory []int `json:"focusHistory,omitempty"`
}

// SessionStore persists sessions by id plus the tab-list snapshot.
type SessionStore interface {
	GetSession(id string) (Session, bool, error)
	PutSession(s Session) error
	DeleteSession(id string) error
	SaveSnapshot(snap Snapshot) error
	LoadSnapshot() (Snapshot, bool, error)
}

// NoteInfo is the current state of a referenced note.
type NoteInfo struct {
	Exists   bool
	Locked   bool
	Readonly bool
}

// NoteChecker resolves a note's current state. Session loads re-derive
// locked/readonly flags through it because a note may have changed
// since the session was captured.
type NoteChecker interface {
	NoteState(noteID string) NoteInfo
}

// LoadRequest is the payload published under event.LoadNote when a tab
// starts showing a (possibly empty) session.
type LoadRequest struct {
	TabID    int
	NoteID   string
	Session  Session
	Restored bool // via back/forward or relaunch rather than a fresh open
}

// Options configures NewTab.
type Options struct {
	NoteID  string
	Pinned  bool
	Preview bool
}

// Store owns the tab list. All mutations are best-effort: unknown tab
// or session ids degrade to no-ops and lookups to zero values, so a
// stale reference can never take the host down.
type Store struct {
	mu           sync.Mutex
	tabs         []*Tab
	current      int
	focusHistory []int // most recently used first
	canGoBack    bool
	canGoForward bool

	store        SessionStore
	notes        NoteChecker
	bus          *event.Dispatcher
	logger       *slog.Logger
	newSessionID func() string
}

// New creates an empty store. Call Restore to load the persisted layout
// (or to create the initial empty tab).
func New(store SessionStore, notes NoteChecker, bus *event.Dispatcher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		store:        store,
		notes:        notes,
		bus:          bus,
		logger:       logger,
		newSessionID: uuid.NewString,
	}
}

// pending collects events during a locked section for publishing after
// the lock is released, so subscribers may call back into the store.
type pending struct {
	name    string
	payload any
}

func (s *Store) publish(events []pending) {
	for _, ev := range events {
		s.bus.Publish(ev.name, ev.payload)
	}
}

// Restore loads the persisted tab layout; when nothing was persisted
// (first launch) it creates one empty tab.
func (s *Store) Restore() {
	s.mu.Lock()
	snap, ok, err := s.store.LoadSnapshot()
	if err != nil {
		s.logger.Warn("tab snapshot load failed", "err", err)
		ok = false
	}
	if ok && len(snap.Tabs) > 0 {
		s.tabs = make([]*Tab, 0, len(snap.Tabs))
		for i := range snap.Tabs {
			tab := snap.Tabs[i]
			s.tabs = append(s.tabs, &tab)
		}
		s.current = snap.CurrentTab
		s.focusHistory = snap.FocusHistory
		if _, ok := s.tabByID(s.current); !ok {
			s.current = s.tabs[0].ID
		}
		s.recomputeNav()
		s.mu.Unlock()
		s.publish([]pending{{event.TabsChanged, nil}, {event.TabFocused, s.CurrentTabID()}})
		return
	}
	events := s.newTabLocked(Options{})
	s.mu.Unlock()
	s.publish(events)
}

// NewTab allocates the smallest free id, appends a tab with a fresh
// session, focuses it, and returns the id.
func (s *Store) NewTab(opts Options) int {
	s.mu.Lock()
	events := s.newTabLocked(opts)
	id := s.current
	s.mu.Unlock()
	s.publish(events)
	return id
}

func (s *Store) newTabLocked(opts Options) []pending {
	id := s.smallestFreeID()
	session := s.freshSession(opts.NoteID)
	tab := &Tab{
		ID:      id,
		NoteID:  opts.NoteID,
		Pinned:  opts.Pinned,
		Preview: opts.Preview,
		Session: session,
	}
	s.tabs = append(s.tabs, tab)
	s.persistSession(session)

	events := []pending{{event.TabsChanged, nil}}
	events = append(events, s.focusLocked(id)...)
	if opts.NoteID != "" {
		events = append(events, pending{event.LoadNote, LoadRequest{
			TabID:   id,
			NoteID:  opts.NoteID,
			Session: session,
		}})
	}
	s.snapshotLocked()
	return events
}

// smallestFreeID returns the smallest positive integer no open tab uses.
// Ids are never reused while the holding tab is alive.
func (s *Store) smallestFreeID() int {
	used := make(map[int]bool, len(s.tabs))
	for _, t := range s.tabs {
		used[t.ID] = true
	}
	for id := 1; ; id++ {
		if !used[id] {
			return id
		}
	}
}

func (s *Store) freshSession(noteID string) Session {
	session := Session{ID: s.newSessionID(), NoteID: noteID}
	if noteID != "" {
		info := s.notes.NoteState(noteID)
		session.Locked = info.Locked
		session.NoteLocked = info.Locked
		session.Readonly = info.Readonly
	}
	return session
}

// FocusTab makes a tab current and records it in the focus history.
// Unknown ids are ignored.
func (s *Store) FocusTab(id int) {
	s.mu.Lock()
	events := s.focusLocked(id)
	s.snapshotLocked()
	s.mu.Unlock()
	s.publish(events)
}

func (s *Store) focusLocked(id int) []pending {
	if _, ok := s.tabByID(id); !ok {
		return nil
	}
	s.touchFocusHistory(id)
	s.current = id
	s.recomputeNav()
	return []pending{{event.TabFocused, id}}
}

func (s *Store) touchFocusHistory(id int) {
	history := s.focusHistory[:0]
	for _, h := range s.focusHistory {
		if h != id {
			history = append(history, h)
		}
	}
	s.focusHistory = append([]int{id}, history...)
}

// FocusEmptyTab focuses an existing noteless tab, creating one if none
// exists, and returns its id.
func (s *Store) FocusEmptyTab() int {
	s.mu.Lock()
	for _, t := range s.tabs {
		if t.NoteID == "" {
			events := s.focusLocked(t.ID)
			s.snapshotLocked()
			id := t.ID
			s.mu.Unlock()
			s.publish(events)
			return id
		}
	}
	events := s.newTabLocked(Options{})
	id := s.current
	s.mu.Unlock()
	s.publish(events)
	return id
}

// OpenNote routes a note-open request: an existing tab for the note is
// focused; otherwise the note opens in a new tab (when asked, or when
// the focused tab is pinned) or in the preview tab. Returns the tab id
// that ends up showing the note.
func (s *Store) OpenNote(noteID string, inNewTab bool) int {
	if id, ok := s.TabForNote(noteID); ok {
		s.FocusTab(id)
		return id
	}
	if inNewTab {
		return s.NewTab(Options{NoteID: noteID})
	}
	s.mu.Lock()
	cur, ok := s.tabByID(s.current)
	pinned := ok && cur.Pinned
	s.mu.Unlock()
	if pinned {
		return s.NewTab(Options{NoteID: noteID})
	}
	return s.FocusPreviewTab(noteID)
}

// FocusPreviewTab shows the note in the designated preview tab,
// replacing its content. An edited preview tab is promoted to a regular
// tab first and a new preview tab is spawned. Returns the preview tab id.
func (s *Store) FocusPreviewTab(noteID string) int {
	s.mu.Lock()
	var preview *Tab
	for _, t := range s.tabs {
		if t.Preview {
			preview = t
			break
		}
	}
	if preview == nil {
		// An empty focused tab becomes the preview tab instead of
		// leaving a stray blank tab behind.
		if cur, ok := s.tabByID(s.current); ok && cur.NoteID == "" && !cur.Pinned {
			cur.Preview = true
			preview = cur
		} else {
			events := s.newTabLocked(Options{NoteID: noteID, Preview: true})
			id := s.current
			s.mu.Unlock()
			s.publish(events)
			return id
		}
	}
	if preview.Edited {
		preview.Preview = false
		events := s.newTabLocked(Options{NoteID: noteID, Preview: true})
		id := s.current
		s.mu.Unlock()
		s.publish(events)
		return id
	}

	events := s.navigateLocked(preview, noteID)
	events = append(events, s.focusLocked(preview.ID)...)
	s.snapshotLocked()
	id := preview.ID
	s.mu.Unlock()
	s.publish(events)
	return id
}

// navigateLocked points a tab at a different note: the current session
// is pushed onto the back stack, the forward stack is discarded (its
// sessions pruned), and a fresh session is created.
func (s *Store) navigateLocked(tab *Tab, noteID string) []pending {
	tab.BackStack = append(tab.BackStack, tab.Session.ID)
	for _, sid := range tab.ForwardStack {
		s.deleteSession(sid)
	}
	tab.ForwardStack = nil

	session := s.freshSession(noteID)
	tab.Session = session
	tab.NoteID = noteID
	tab.Edited = false
	s.persistSession(session)
	s.recomputeNav()

	return []pending{{event.TabsChanged, nil}, {event.LoadNote, LoadRequest{
		TabID:   tab.ID,
		NoteID:  noteID,
		Session: session,
	}}}
}

// Navigate points an existing tab at a different note (link-following
// within a tab). Unknown ids are ignored.
func (s *Store) Navigate(tabID int, noteID string) {
	s.mu.Lock()
	tab, ok := s.tabByID(tabID)
	if !ok {
		s.mu.Unlock()
		return
	}
	events := s.navigateLocked(tab, noteID)
	s.snapshotLocked()
	s.mu.Unlock()
	s.publish(events)
}

// TabFields is a partial update; nil fields are left untouched.
type TabFields struct {
	NoteID  *string
	Pinned  *bool
	Preview *bool
	Edited  *bool
	Session *Session
}

// UpdateTab merges fields into a tab. A Session field is persisted to
// the session store. Unknown ids are a silent no-op.
func (s *Store) UpdateTab(id int, fields TabFields) {
	s.mu.Lock()
	tab, ok := s.tabByID(id)
	if !ok {
		s.mu.Unlock()
		return
	}
	if fields.NoteID != nil {
		tab.NoteID = *fields.NoteID
		tab.Session.NoteID = *fields.NoteID
		s.persistSession(tab.Session)
	}
	if fields.Pinned != nil {
		tab.Pinned = *fields.Pinned
	}
	if fields.Preview != nil {
		tab.Preview = *fields.Preview
	}
	if fields.Edited != nil {
		tab.Edited = *fields.Edited
	}
	if fields.Session != nil {
		tab.Session = *fields.Session
		s.persistSession(tab.Session)
	}
	s.snapshotLocked()
	s.mu.Unlock()
	s.publish([]pending{{event.TabsChanged, nil}})
}

// RemoveTab closes a tab, pruning every session reachable only from it.
// A focused tab hands focus to the most recently used survivor; closing
// the last tab replaces it with a fresh empty one.
func (s *Store) RemoveTab(id int) {
	s.mu.Lock()
	idx := -1
	for i, t := range s.tabs {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	tab := s.tabs[idx]

	s.deleteSession(tab.Session.ID)
	for _, sid := range tab.BackStack {
		s.deleteSession(sid)
	}
	for _, sid := range tab.ForwardStack {
		s.deleteSession(sid)
	}

	s.tabs = append(s.tabs[:idx], s.tabs[idx+1:]...)
	history := s.focusHistory[:0]
	for _, h := range s.focusHistory {
		if h != id {
			history = append(history, h)
		}
	}
	s.focusHistory = history

	events := []pending{{event.TabsChanged, nil}}
	if len(s.tabs) == 0 {
		events = append(events, s.newTabLocked(Options{})...)
		s.mu.Unlock()
		s.publish(events)
		return
	}
	if s.current == id {
		next := s.tabs[0].ID
		if len(s.focusHistory) > 0 {
			next = s.focusHistory[0]
		}
		events = append(events, s.focusLocked(next)...)
	}
	s.snapshotLocked()
	s.mu.Unlock()
	s.publish(events)
}

// MoveTab reorders the tab list. Out-of-range indices are clamped.
func (s *Store) MoveTab(from, to int) {
	s.mu.Lock()
	if len(s.tabs) == 0 {
		s.mu.Unlock()
		return
	}
	from = clamp(from, 0, len(s.tabs)-1)
	to = clamp(to, 0, len(s.tabs)-1)
	if from == to {
		s.mu.Unlock()
		return
	}
	tab := s.tabs[from]
	s.tabs = append(s.tabs[:from], s.tabs[from+1:]...)
	s.tabs = append(s.tabs[:to], append([]*Tab{tab}, s.tabs[to:]...)...)
	s.snapshotLocked()
	s.mu.Unlock()
	s.publish([]pending{{event.TabsChanged, nil}})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Store) tabByID(id int) (*Tab, bool) {
	for _, t := range s.tabs {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (s *Store) persistSession(session Session) {
	if err := s.store.PutSession(session); err != nil {
		s.logger.Warn("session persist failed", "session", session.ID, "err", err)
	}
}

func (s *Store) deleteSession(id string) {
	if err := s.store.DeleteSession(id); err != nil {
		s.logger.Warn("session delete failed", "session", id, "err", err)
	}
}

func (s *Store) snapshotLocked() {
	snap := Snapshot{
		Tabs:         make([]Tab, len(s.tabs)),
		CurrentTab:   s.current,
		FocusHistory: append([]int(nil), s.focusHistory...),
	}
	for i, t := range s.tabs {
		snap.Tabs[i] = *t
	}
	if err := s.store.SaveSnapshot(snap); err != nil {
		s.logger.Warn("tab snapshot save failed", "err", err)
	}
}
