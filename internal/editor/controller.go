package editor

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marcus/notedeck/internal/attachment"
	"github.com/marcus/notedeck/internal/event"
	"github.com/marcus/notedeck/internal/history"
	"github.com/marcus/notedeck/internal/note"
	"github.com/marcus/notedeck/internal/tabs"
	"github.com/marcus/notedeck/internal/vault"
)

// newNoteKey keys debounce state for edits in a tab whose note has not
// been created yet.
const newNoteKey = "newnote"

// DefaultDebounce is how long the controller waits after the last
// keystroke before persisting.
const DefaultDebounce = 150 * time.Millisecond

// DefaultAttachmentDelay is how long after a load attachment downloads
// start, so they never compete with the initial render.
const DefaultAttachmentDelay = 300 * time.Millisecond

// NoteStore is the persistence surface the controller needs.
type NoteStore interface {
	Add(p note.SavePayload) (string, error)
	Note(id string) (*note.Note, error)
	ContentOf(noteID string) (*note.Content, error)
	TagsOf(noteID string) ([]string, error)
	LinkTag(noteID, tag string) error
	UnlinkTag(noteID, tag string) error
	AddToDefaultNotebook(noteID string) error
}

// TabStore is the slice of the tab store the controller uses.
type TabStore interface {
	Tab(id int) (tabs.Tab, bool)
	UpdateTab(id int, fields tabs.TabFields)
	TabsForNote(noteID string) []int
	CurrentTabID() int
}

// Cipher seals and opens locked-note content.
type Cipher interface {
	IsOpen() bool
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// pendingEdit is the coalesced state of a note's unsaved keystrokes.
type pendingEdit struct {
	tabID     int
	sessionID string
	content   string
	hasData   bool
	title     string
	hasTitle  bool
	queuedAt  int64 // unix ms of the last keystroke
}

// Controller owns per-note save state: the keystroke debounce, save
// arbitration for new/locked/empty notes, and reconciliation when sync
// rewrites an open note underneath the editor.
type Controller struct {
	notes  NoteStore
	hist   *history.Sessions
	tabs   TabStore
	vault  Cipher
	attach *attachment.Manager
	cmd    *Commands
	bus    *event.Dispatcher
	logger *slog.Logger

	debounce        time.Duration
	attachmentDelay time.Duration
	now             func() time.Time

	mu           sync.Mutex
	timers       map[string]*time.Timer
	pending      map[string]pendingEdit
	saveCount    map[string]int
	lastRendered map[string]string // content last pushed to the surface, per note
	lastEdited   map[string]int64  // content dateEdited last seen, per note
	loading      string            // note currently being loaded into the surface
	locked       bool              // edits suspended during vault transitions
}

// Config carries the controller's tunables.
type Config struct {
	Debounce        time.Duration
	AttachmentDelay time.Duration
}

// NewController wires the save pipeline. Zero tunables use the
// defaults.
func NewController(notes NoteStore, hist *history.Sessions, tabStore TabStore, cipher Cipher, attach *attachment.Manager, cmd *Commands, bus *event.Dispatcher, logger *slog.Logger, cfg Config) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	attachmentDelay := cfg.AttachmentDelay
	if attachmentDelay <= 0 {
		attachmentDelay = DefaultAttachmentDelay
	}
	c := &Controller{
		notes:           notes,
		hist:            hist,
		tabs:            tabStore,
		vault:           cipher,
		attach:          attach,
		cmd:             cmd,
		bus:             bus,
		logger:          logger,
		debounce:        debounce,
		attachmentDelay: attachmentDelay,
		now:             time.Now,
		timers:          make(map[string]*time.Timer),
		pending:         make(map[string]pendingEdit),
		saveCount:       make(map[string]int),
		lastRendered:    make(map[string]string),
		lastEdited:      make(map[string]int64),
	}
	bus.Subscribe(event.LoadNote, func(payload any) {
		if req, ok := payload.(tabs.LoadRequest); ok {
			c.Load(req)
		}
	})
	bus.Subscribe(event.SyncApplied, func(payload any) {
		if noteID, ok := payload.(string); ok {
			c.OnSyncApplied(noteID)
		}
	})
	return c
}

// Load brings a session's note into the surface. An empty note id
// clears the editor. Locked notes need the vault open; otherwise an
// unlock request is published and the surface stays cleared.
func (c *Controller) Load(req tabs.LoadRequest) {
	c.mu.Lock()
	c.loading = req.NoteID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loading = ""
		c.mu.Unlock()
	}()

	if err := c.cmd.SetSessionID(req.Session.ID); err != nil {
		c.logger.Warn("session handoff failed", "err", err)
	}

	if req.NoteID == "" {
		c.cmd.ClearContent()
		c.cmd.SetTitle("")
		c.cmd.ClearTags()
		c.cmd.SetPlaceholder("Start writing your thoughts here...")
		return
	}

	n, err := c.notes.Note(req.NoteID)
	if err != nil || n == nil {
		c.logger.Warn("load failed", "note", req.NoteID, "err", err)
		c.cmd.ClearContent()
		return
	}

	content := ""
	if raw, err := c.notes.ContentOf(req.NoteID); err == nil && raw != nil {
		content = raw.Data
		c.rememberRendered(req.NoteID, content, raw.DateEdited)
	}

	if n.Locked {
		if !c.vault.IsOpen() {
			c.cmd.ClearContent()
			c.cmd.SetTitle(n.Title)
			c.bus.Publish(event.VaultUnlockRequired, req.NoteID)
			return
		}
		plain, err := c.vault.Open(content)
		if err != nil {
			c.logger.Error("locked note decrypt failed", "note", req.NoteID, "err", err)
			c.cmd.ClearContent()
			return
		}
		content = plain
		c.rememberRendered(req.NoteID, content, n.DateEdited)
	}

	// A session history window opens (or resumes) with the note.
	c.hist.Get(req.NoteID)

	c.cmd.SetTitle(n.Title)
	if tags, err := c.notes.TagsOf(req.NoteID); err == nil && len(tags) > 0 {
		c.cmd.SetTags(tags)
	} else {
		c.cmd.ClearTags()
	}
	if err := c.cmd.SetContent(ContentOptions{
		Content:       content,
		SessionID:     req.Session.ID,
		Readonly:      n.Readonly || req.Session.Readonly,
		ScrollTop:     req.Session.ScrollTop,
		SelectionFrom: req.Session.SelectionFrom,
		SelectionTo:   req.Session.SelectionTo,
	}); err != nil {
		c.logger.Warn("content load failed", "note", req.NoteID, "err", err)
	}
	c.cmd.SetStatus(n.DateEdited, true)

	c.mu.Lock()
	c.saveCount[req.NoteID] = 0
	c.mu.Unlock()

	if !n.Locked {
		// Downloads start after the render has had a moment to settle.
		refs := attachment.Refs(content)
		noteID := req.NoteID
		time.AfterFunc(c.attachmentDelay, func() {
			c.attach.DownloadGroup(noteID, refs)
		})
	}
	c.bus.Publish(event.NoteLoaded, req.NoteID)
}

// QueueContent coalesces a content keystroke into the note's pending
// edit and (re)arms the debounce. Edits arriving while the note is
// still loading are surface echoes and are dropped.
func (c *Controller) QueueContent(tabID int, sessionID, content string) {
	tab, ok := c.tabs.Tab(tabID)
	if !ok {
		return
	}
	c.mu.Lock()
	if c.locked || (tab.NoteID != "" && tab.NoteID == c.loading) {
		c.mu.Unlock()
		return
	}
	key := saveKey(tab.NoteID)
	p := c.pending[key]
	p.tabID = tabID
	p.sessionID = sessionID
	p.content = content
	p.hasData = true
	p.queuedAt = c.now().UnixMilli()
	c.pending[key] = p
	c.armTimer(key)
	c.mu.Unlock()

	if !tab.Edited {
		edited := true
		c.tabs.UpdateTab(tabID, tabs.TabFields{Edited: &edited})
	}
}

// QueueTitle coalesces a title keystroke the same way.
func (c *Controller) QueueTitle(tabID int, sessionID, title string) {
	tab, ok := c.tabs.Tab(tabID)
	if !ok {
		return
	}
	c.mu.Lock()
	if c.locked || (tab.NoteID != "" && tab.NoteID == c.loading) {
		c.mu.Unlock()
		return
	}
	key := saveKey(tab.NoteID)
	p := c.pending[key]
	p.tabID = tabID
	p.sessionID = sessionID
	p.title = title
	p.hasTitle = true
	p.queuedAt = c.now().UnixMilli()
	c.pending[key] = p
	c.armTimer(key)
	c.mu.Unlock()

	if !tab.Edited {
		edited := true
		c.tabs.UpdateTab(tabID, tabs.TabFields{Edited: &edited})
	}
}

func saveKey(noteID string) string {
	if noteID == "" {
		return newNoteKey
	}
	return noteID
}

// armTimer must be called with the mutex held.
func (c *Controller) armTimer(key string) {
	if t, ok := c.timers[key]; ok {
		t.Stop()
	}
	c.timers[key] = time.AfterFunc(c.debounce, func() { c.Flush(key) })
}

// SaveNow flushes a tab's pending edit immediately (explicit save).
func (c *Controller) SaveNow(tabID int) {
	tab, ok := c.tabs.Tab(tabID)
	if !ok {
		return
	}
	key := saveKey(tab.NoteID)
	c.mu.Lock()
	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
	c.mu.Unlock()
	c.Flush(key)
}

// Flush persists the pending edit for a save key. Saves are dropped
// when the originating session is no longer the tab's active one.
func (c *Controller) Flush(key string) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok || c.locked {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	delete(c.timers, key)
	c.mu.Unlock()

	tab, ok := c.tabs.Tab(p.tabID)
	if !ok || tab.Session.ID != p.sessionID {
		c.logger.Debug("dropping save for stale session", "tab", p.tabID, "session", p.sessionID)
		return
	}

	noteID := ""
	if key != newNoteKey {
		noteID = key
	}
	c.save(noteID, p)
}

func (c *Controller) save(noteID string, p pendingEdit) {
	payload := note.SavePayload{
		ID:       noteID,
		Title:    p.title,
		HasTitle: p.hasTitle,
		Data:     p.content,
		HasData:  p.hasData,
		Type:     note.ContentTypeHTML,
	}

	var prevTitle, prevHeadline string
	if noteID != "" {
		existing, err := c.notes.Note(noteID)
		if err != nil {
			c.logger.Error("save lookup failed", "note", noteID, "err", err)
			return
		}
		if existing == nil {
			// Deleted under an open tab; the edit has nowhere to go.
			c.logger.Warn("dropping save for deleted note", "note", noteID)
			return
		}
		if existing.Readonly {
			return
		}
		prevTitle = existing.Title
		prevHeadline = existing.Headline
		payload.Locked = existing.Locked

		stamp := c.hist.Get(noteID)
		if p.hasData && isEmptyContent(p.content) && c.hadContent(noteID) {
			// An emptied document must not overwrite the history
			// version that still holds the text.
			stamp = c.hist.NewSession(noteID)
		}
		payload.SessionID = stamp

		if existing.Locked {
			if !c.vault.IsOpen() {
				c.bus.Publish(event.VaultUnlockRequired, noteID)
				return
			}
			if p.hasData {
				sealed, err := c.vault.Seal(p.content)
				if err != nil {
					c.logger.Error("locked note encrypt failed", "note", noteID, "err", err)
					return
				}
				payload.Data = sealed
			}
		}
	}

	savedID, err := c.notes.Add(payload)
	if err != nil {
		c.logger.Error("save failed", "note", noteID, "err", err)
		return
	}

	saved, err := c.notes.Note(savedID)
	if err != nil || saved == nil {
		c.logger.Error("saved note readback failed", "note", savedID, "err", err)
		return
	}

	created := noteID == ""
	noteID = savedID
	if created {
		c.adoptNewNote(saved, p)
	}

	c.mu.Lock()
	c.saveCount[noteID]++
	count := c.saveCount[noteID]
	if p.hasData {
		c.lastRendered[noteID] = p.content
		c.lastEdited[noteID] = saved.DateEdited
	}
	c.mu.Unlock()

	// The first couple of saves race the initial render; push the
	// stored title and status back so the surface settles on them.
	if count <= 2 && saved.Title != "" {
		c.cmd.SetTitle(saved.Title)
	}
	c.cmd.SetStatus(saved.DateEdited, true)

	// List views only show title and headline, so once a note's row has
	// settled, refreshes that change neither are skipped.
	if count <= 2 || saved.Title != prevTitle || saved.Headline != prevHeadline {
		c.bus.Publish(event.NotesChanged, noteID)
	}
}

// adoptNewNote binds a freshly created note to its tab and moves the
// unsaved-note debounce state onto the real id.
func (c *Controller) adoptNewNote(saved *note.Note, p pendingEdit) {
	id := saved.ID
	c.tabs.UpdateTab(p.tabID, tabs.TabFields{NoteID: &id})

	c.mu.Lock()
	if pending, ok := c.pending[newNoteKey]; ok {
		delete(c.pending, newNoteKey)
		c.pending[id] = pending
		if t, ok := c.timers[newNoteKey]; ok {
			delete(c.timers, newNoteKey)
			t.Stop()
			c.armTimer(id)
		}
	}
	c.saveCount[id] = c.saveCount[newNoteKey]
	delete(c.saveCount, newNoteKey)
	c.mu.Unlock()

	c.hist.Get(id)
	if err := c.notes.AddToDefaultNotebook(id); err != nil {
		c.logger.Warn("default notebook link failed", "note", id, "err", err)
	}
	c.bus.Publish(event.NoteCreated, id)
}

// AddTag links a tag to the tab's note and pushes the refreshed tag
// list back to the surface.
func (c *Controller) AddTag(tabID int, tag string) {
	c.mutateTag(tabID, tag, c.notes.LinkTag)
}

// RemoveTag unlinks a tag the same way.
func (c *Controller) RemoveTag(tabID int, tag string) {
	c.mutateTag(tabID, tag, c.notes.UnlinkTag)
}

func (c *Controller) mutateTag(tabID int, tag string, mutate func(noteID, tag string) error) {
	tab, ok := c.tabs.Tab(tabID)
	if !ok || tab.NoteID == "" || tag == "" {
		return
	}
	if err := mutate(tab.NoteID, tag); err != nil {
		c.logger.Error("tag update failed", "note", tab.NoteID, "tag", tag, "err", err)
		return
	}
	tags, err := c.notes.TagsOf(tab.NoteID)
	if err != nil {
		c.logger.Warn("tag list readback failed", "note", tab.NoteID, "err", err)
		return
	}
	if len(tags) > 0 {
		c.cmd.SetTags(tags)
	} else {
		c.cmd.ClearTags()
	}
	c.bus.Publish(event.NotesChanged, tab.NoteID)
}

// hadContent reports whether the stored note currently has non-empty
// content.
func (c *Controller) hadContent(noteID string) bool {
	raw, err := c.notes.ContentOf(noteID)
	if err != nil || raw == nil {
		return false
	}
	return !isEmptyContent(raw.Data)
}

// OnSyncApplied reconciles an open note after sync merged remote state.
// Last-writer-wins on the content timestamp: a local pending edit newer
// than the remote content keeps the surface untouched; otherwise the
// remote content replaces it in place and newly referenced attachments
// start downloading.
func (c *Controller) OnSyncApplied(noteID string) {
	tabIDs := c.tabs.TabsForNote(noteID)
	if len(tabIDs) == 0 {
		return
	}

	n, err := c.notes.Note(noteID)
	if err != nil || n == nil {
		return
	}
	raw, err := c.notes.ContentOf(noteID)
	if err != nil || raw == nil {
		return
	}

	c.mu.Lock()
	lastSeen := c.lastEdited[noteID]
	previous := c.lastRendered[noteID]
	p, hasPending := c.pending[noteID]
	c.mu.Unlock()

	if raw.DateEdited <= lastSeen {
		return // nothing newer than what the surface shows
	}
	if hasPending && p.queuedAt > raw.DateEdited {
		c.logger.Debug("local edit newer than synced content", "note", noteID)
		return
	}

	content := raw.Data
	if n.Locked {
		if !c.vault.IsOpen() {
			// The open note changed remotely but cannot be shown until
			// the vault is unlocked.
			c.bus.Publish(event.VaultUnlockRequired, noteID)
			return
		}
		plain, err := c.vault.Open(content)
		if err != nil {
			c.logger.Error("synced locked note decrypt failed", "note", noteID, "err", err)
			return
		}
		content = plain
	}

	current := c.tabs.CurrentTabID()
	for _, id := range tabIDs {
		if id != current {
			continue
		}
		tab, ok := c.tabs.Tab(id)
		if !ok {
			continue
		}
		if err := c.cmd.UpdateContent(content, tab.Session.ID); err != nil {
			c.logger.Warn("sync content push failed", "note", noteID, "err", err)
		}
	}
	if n.Title != "" {
		c.cmd.SetTitle(n.Title)
	}
	c.cmd.SetStatus(raw.DateEdited, true)
	c.rememberRendered(noteID, content, raw.DateEdited)

	if !n.Locked {
		if fresh := attachment.NewRefs(previous, content); len(fresh) > 0 {
			c.attach.DownloadGroup(noteID, fresh)
		}
	}
}

func (c *Controller) rememberRendered(noteID, content string, dateEdited int64) {
	c.mu.Lock()
	c.lastRendered[noteID] = content
	c.lastEdited[noteID] = dateEdited
	c.mu.Unlock()
}

// SetLock suspends or resumes edit intake; used around vault
// transitions so half-sealed state never reaches the store.
func (c *Controller) SetLock(locked bool) {
	c.mu.Lock()
	c.locked = locked
	c.mu.Unlock()
}

// Forget drops the controller's memory of a note (closed everywhere or
// deleted). Pending edits are discarded.
func (c *Controller) Forget(noteID string) {
	c.mu.Lock()
	if t, ok := c.timers[noteID]; ok {
		t.Stop()
		delete(c.timers, noteID)
	}
	delete(c.pending, noteID)
	delete(c.saveCount, noteID)
	delete(c.lastRendered, noteID)
	delete(c.lastEdited, noteID)
	c.mu.Unlock()
	c.attach.CancelGroup(noteID)
}

// Reset drops all per-note state (logout, store switch).
func (c *Controller) Reset() {
	c.mu.Lock()
	for key, t := range c.timers {
		t.Stop()
		delete(c.timers, key)
	}
	c.pending = make(map[string]pendingEdit)
	c.saveCount = make(map[string]int)
	c.lastRendered = make(map[string]string)
	c.lastEdited = make(map[string]int64)
	c.loading = ""
	c.mu.Unlock()
}

// emptySentinels are the serializations editors emit for a document
// with no user content.
var emptySentinels = map[string]struct{}{
	"":                 {},
	"<p></p>":          {},
	"<p><br></p>":      {},
	"<p>&nbsp;</p>":    {},
	"<p><br/></p>":     {},
	"<p> </p>":         {},
	"<div></div>":      {},
	"<div><br></div>":  {},
	"<div><br/></div>": {},
}

func isEmptyContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	_, ok := emptySentinels[trimmed]
	return ok
}

// SetClock overrides wall-clock time for tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

var _ Cipher = (*vault.Vault)(nil)
