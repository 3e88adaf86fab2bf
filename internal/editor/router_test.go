package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcus/notedeck/internal/attachment"
	"github.com/marcus/notedeck/internal/event"
)

func envelope(t *testing.T, typ string, tabID int, sessionID string, value any) []byte {
	t.Helper()
	var raw json.RawMessage
	if value != nil {
		b, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		raw = b
	}
	b, err := json.Marshal(Envelope{Type: typ, TabID: tabID, SessionID: sessionID, Value: raw})
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return b
}

func TestRouter_ContentChangeSaves(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "Draft", "<p>v0</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()

	f.router.HandleMessage(envelope(t, TypeContentChanged, tabID, sessionID,
		ContentChange{Content: "<p>typed</p>"}))

	waitFor(t, "routed save", func() bool {
		c, _ := f.store.ContentOf(noteID)
		return c.Data == "<p>typed</p>"
	})
}

func TestRouter_StaleSessionDropped(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "Draft", "<p>v0</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, _ := f.currentSession()

	f.router.HandleMessage(envelope(t, TypeContentChanged, tabID, "ghost-session",
		ContentChange{Content: "<p>stale</p>"}))
	time.Sleep(80 * time.Millisecond)

	c, _ := f.store.ContentOf(noteID)
	if c.Data != "<p>v0</p>" {
		t.Errorf("content = %q, stale-session message was applied", c.Data)
	}
}

func TestRouter_UnknownTabDropped(t *testing.T) {
	f := newFixture(t)
	f.router.HandleMessage(envelope(t, TypeContentChanged, 42, "whatever",
		ContentChange{Content: "<p>x</p>"}))
	// Nothing to assert beyond not panicking and not creating a note.
	time.Sleep(50 * time.Millisecond)
	notes, _ := f.store.List()
	if len(notes) != 0 {
		t.Errorf("note created from unknown-tab message: %v", notes)
	}
}

func TestRouter_IgnoreEditFlag(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "Draft", "<p>v0</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()

	f.router.HandleMessage(envelope(t, TypeContentChanged, tabID, sessionID,
		ContentChange{Content: "<p>programmatic</p>", IgnoreEdit: true}))
	time.Sleep(80 * time.Millisecond)

	c, _ := f.store.ContentOf(noteID)
	if c.Data != "<p>v0</p>" {
		t.Errorf("content = %q, ignore-edit change was persisted", c.Data)
	}
}

func TestRouter_ResultBypassesGuard(t *testing.T) {
	f := newFixture(t)
	f.surface.silent["tableOfContents"] = true

	done := make(chan []TOCEntry, 1)
	go func() {
		toc, err := f.cmd.TableOfContents()
		if err != nil {
			done <- nil
			return
		}
		done <- toc
	}()

	var resolverID string
	waitFor(t, "invocation", func() bool {
		calls := f.surface.calls("tableOfContents")
		if len(calls) == 0 {
			return false
		}
		resolverID = calls[0].ID
		return true
	})

	// The result carries no tab or session id at all.
	msg, _ := json.Marshal(Envelope{
		Type:       TypeResult,
		ResolverID: resolverID,
		Value:      json.RawMessage(`[{"title":"H","level":1,"anchor":"h"}]`),
	})
	f.router.HandleMessage(msg)

	select {
	case toc := <-done:
		if len(toc) != 1 || toc[0].Anchor != "h" {
			t.Errorf("resolved toc = %+v", toc)
		}
	case <-time.After(time.Second):
		t.Fatal("result message did not resolve the invocation")
	}
}

func TestRouter_SelectionAndScrollPersist(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "Draft", "<p>v0</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()

	f.router.HandleMessage(envelope(t, TypeSelectionChanged, tabID, sessionID,
		SelectionChange{From: 3, To: 9}))
	f.router.HandleMessage(envelope(t, TypeScrolled, tabID, sessionID,
		ScrollChange{Top: 240}))

	tab, _ := f.tabs.Tab(tabID)
	if tab.Session.SelectionFrom != 3 || tab.Session.SelectionTo != 9 {
		t.Errorf("selection = %d..%d, want 3..9", tab.Session.SelectionFrom, tab.Session.SelectionTo)
	}
	if tab.Session.ScrollTop != 240 {
		t.Errorf("scrollTop = %d, want 240", tab.Session.ScrollTop)
	}
}

func TestRouter_NoteLinkOpensOtherNote(t *testing.T) {
	f := newFixture(t)
	current := f.addNote(t, "A", "<p>a</p>")
	target := f.addNote(t, "B", "<p>b</p>")
	f.tabs.OpenNote(current, false)
	tabID, sessionID := f.currentSession()

	f.router.HandleMessage(envelope(t, TypeLink, tabID, sessionID,
		LinkRequest{Href: "note://" + target}))

	if f.tabs.CurrentNoteID() != target {
		t.Errorf("current note = %q, want %q", f.tabs.CurrentNoteID(), target)
	}
}

func TestRouter_SameNoteAnchorScrolls(t *testing.T) {
	f := newFixture(t)
	current := f.addNote(t, "A", "<p>a</p>")
	f.tabs.OpenNote(current, false)
	tabID, sessionID := f.currentSession()

	f.router.HandleMessage(envelope(t, TypeLink, tabID, sessionID,
		LinkRequest{Href: fmt.Sprintf("note://%s#section-2", current)}))

	var anchor string
	f.surface.lastArgs(t, "scrollToAnchor", &anchor)
	if anchor != "section-2" {
		t.Errorf("scrolled to %q, want section-2", anchor)
	}
	if f.tabs.CurrentNoteID() != current {
		t.Error("same-note link changed the open note")
	}
}

func TestRouter_ExternalLinkUsesOpener(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "A", "<p>a</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()

	var opened string
	f.router.SetOpener(func(url string) error {
		opened = url
		return nil
	})

	f.router.HandleMessage(envelope(t, TypeLink, tabID, sessionID,
		LinkRequest{Href: "https://example.com/doc"}))

	if opened != "https://example.com/doc" {
		t.Errorf("opened = %q", opened)
	}
}

func TestRouter_CopyText(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "A", "<p>a</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()

	var copied string
	f.router.copyText = func(s string) error {
		copied = s
		return nil
	}

	f.router.HandleMessage(envelope(t, TypeCopyText, tabID, sessionID,
		CopyRequest{Text: "quoted passage"}))

	if copied != "quoted passage" {
		t.Errorf("copied = %q", copied)
	}
}

// countingDownloader serves fixed bytes and counts fetches.
type countingDownloader struct {
	fetches atomic.Int64
}

func (d *countingDownloader) Download(ctx context.Context, hash string) ([]byte, error) {
	d.fetches.Add(1)
	return []byte("data-" + hash), nil
}

func (d *countingDownloader) Exists(string) (bool, error) { return true, nil }

func TestRouter_AttachmentRequestsDeduplicated(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "A", "<p>a</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()

	dl := &countingDownloader{}
	f.router.attach = attachment.NewManager(dl, nil)

	var mu sync.Mutex
	now := time.Now()
	f.router.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	req := envelope(t, TypeAttachmentData, tabID, sessionID, AttachmentRequest{Hash: "cafe"})
	f.router.HandleMessage(req)
	f.router.HandleMessage(req) // within the await window

	waitFor(t, "attachment delivery", func() bool {
		return len(f.surface.calls("attachmentData")) > 0
	})
	time.Sleep(30 * time.Millisecond)

	if got := dl.fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1 (request deduplicated)", got)
	}

	// Past the window the hash can be requested again.
	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()
	f.router.HandleMessage(req)
	waitFor(t, "second delivery", func() bool {
		return dl.fetches.Load() == 2
	})
}

func TestRouter_BackMessageNavigates(t *testing.T) {
	f := newFixture(t)
	a := f.addNote(t, "A", "<p>a</p>")
	b := f.addNote(t, "B", "<p>b</p>")
	f.tabs.OpenNote(a, false)
	f.tabs.OpenNote(b, false)
	tabID, sessionID := f.currentSession()

	f.router.HandleMessage(envelope(t, TypeGoBack, tabID, sessionID, nil))

	if f.tabs.CurrentNoteID() != a {
		t.Errorf("current note after back = %q, want %q", f.tabs.CurrentNoteID(), a)
	}
}

func TestRouter_TagMessagesUpdateRelations(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "Draft", "<p>v0</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()
	clears := len(f.surface.calls("clearTags"))

	f.router.HandleMessage(envelope(t, TypeTagAdded, tabID, sessionID,
		TagChange{Tag: "errands"}))

	tags, _ := f.store.TagsOf(noteID)
	if len(tags) != 1 || tags[0] != "errands" {
		t.Fatalf("TagsOf = %v, want [errands]", tags)
	}
	var pushed []string
	f.surface.lastArgs(t, "setTags", &pushed)
	if len(pushed) != 1 || pushed[0] != "errands" {
		t.Errorf("setTags pushed %v, want refreshed list", pushed)
	}

	f.router.HandleMessage(envelope(t, TypeTagRemoved, tabID, sessionID,
		TagChange{Tag: "errands"}))

	tags, _ = f.store.TagsOf(noteID)
	if len(tags) != 0 {
		t.Errorf("TagsOf after removal = %v, want empty", tags)
	}
	if len(f.surface.calls("clearTags")) <= clears {
		t.Error("empty tag list was not pushed back to the surface")
	}
}

func TestRouter_TagMessageForEmptyTabIgnored(t *testing.T) {
	f := newFixture(t)
	tabID, sessionID := f.currentSession()

	f.router.HandleMessage(envelope(t, TypeTagAdded, tabID, sessionID,
		TagChange{Tag: "orphan"}))

	if calls := f.surface.calls("setTags"); len(calls) != 0 {
		t.Error("tag pushed for a tab with no note")
	}
}

func TestRouter_CreateLinkRaisesPickEvent(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "Draft", "<p>v0</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()

	picked := -1
	f.bus.Subscribe(event.LinkPick, func(payload any) {
		picked, _ = payload.(int)
	})

	f.router.HandleMessage(envelope(t, TypeCreateLink, tabID, sessionID,
		CreateLinkRequest{Text: "see also"}))

	if picked != tabID {
		t.Errorf("LinkPick payload = %d, want tab %d", picked, tabID)
	}
}

func TestRouter_MessagesRebroadcastByType(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "Draft", "<p>v0</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, sessionID := f.currentSession()

	var heard Envelope
	f.bus.Subscribe(TypeContentChanged, func(payload any) {
		heard, _ = payload.(Envelope)
	})

	f.router.HandleMessage(envelope(t, TypeContentChanged, tabID, sessionID,
		ContentChange{Content: "<p>typed</p>"}))

	if heard.Type != TypeContentChanged || heard.TabID != tabID {
		t.Errorf("rebroadcast envelope = %+v, want type %q for tab %d", heard, TypeContentChanged, tabID)
	}
}

func TestRouter_StaleMessagesNotRebroadcast(t *testing.T) {
	f := newFixture(t)
	noteID := f.addNote(t, "Draft", "<p>v0</p>")
	f.tabs.OpenNote(noteID, false)
	tabID, _ := f.currentSession()

	var heard bool
	f.bus.Subscribe(TypeContentChanged, func(any) { heard = true })

	f.router.HandleMessage(envelope(t, TypeContentChanged, tabID, "ghost-session",
		ContentChange{Content: "<p>stale</p>"}))

	if heard {
		t.Error("stale-session message was rebroadcast")
	}
}

func TestRouter_MalformedInputDropped(t *testing.T) {
	f := newFixture(t)
	f.router.HandleMessage([]byte(`{not json`))
	f.router.HandleMessage([]byte(`{"value":{}}`)) // missing type
	f.router.HandleMessage(envelope(t, "editor:made-up", 1, "", nil))
}
