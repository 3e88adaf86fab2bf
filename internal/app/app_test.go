package app

import (
	"strings"
	"testing"

	"github.com/marcus/notedeck/internal/event"
	"github.com/marcus/notedeck/internal/tabs"
)

type staticNotes map[string]tabs.NoteInfo

func (s staticNotes) NoteState(id string) tabs.NoteInfo { return s[id] }

func newTestApp(t *testing.T, notes staticNotes) *App {
	t.Helper()
	store := tabs.New(tabs.NewMemoryStore(), notes, event.New(), nil)
	store.Restore()
	return &App{tabStore: store, keys: defaultKeyMap()}
}

func TestTabLabelMarkers(t *testing.T) {
	cases := []struct {
		name  string
		tab   tabs.Tab
		title string
		want  string
	}{
		{"empty tab", tabs.Tab{}, "", "New tab"},
		{"note without title", tabs.Tab{NoteID: "note-1"}, "", "Untitled"},
		{"plain title", tabs.Tab{NoteID: "note-1"}, "Groceries", "Groceries"},
		{"pinned", tabs.Tab{NoteID: "note-1", Pinned: true}, "Groceries", "⚲ Groceries"},
		{"edited", tabs.Tab{NoteID: "note-1", Edited: true}, "Groceries", "● Groceries"},
		{"pinned and edited", tabs.Tab{NoteID: "note-1", Pinned: true, Edited: true}, "Groceries", "⚲ ● Groceries"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tabLabel(tc.tab, tc.title); got != tc.want {
				t.Fatalf("tabLabel = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTabLabelTruncatesWideTitles(t *testing.T) {
	long := strings.Repeat("x", 50)
	got := tabLabel(tabs.Tab{NoteID: "note-1"}, long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
	if len([]rune(got)) > tabMaxWidth {
		t.Fatalf("label %q longer than %d runes", got, tabMaxWidth)
	}
}

func TestCycleTabWraps(t *testing.T) {
	a := newTestApp(t, staticNotes{
		"note-1": {Exists: true},
		"note-2": {Exists: true},
	})
	first := a.tabStore.CurrentTabID()
	a.tabStore.NewTab(tabs.Options{NoteID: "note-1"})
	a.tabStore.NewTab(tabs.Options{NoteID: "note-2"})
	last := a.tabStore.CurrentTabID()

	a.cycleTab(1)
	if a.tabStore.CurrentTabID() != first {
		t.Fatalf("expected wrap to first tab %d, got %d", first, a.tabStore.CurrentTabID())
	}
	a.cycleTab(-1)
	if a.tabStore.CurrentTabID() != last {
		t.Fatalf("expected wrap back to tab %d, got %d", last, a.tabStore.CurrentTabID())
	}
}

func TestCycleTabSingleTabNoop(t *testing.T) {
	a := newTestApp(t, staticNotes{})
	id := a.tabStore.CurrentTabID()
	a.cycleTab(1)
	if a.tabStore.CurrentTabID() != id {
		t.Fatal("single tab should not cycle")
	}
}

func TestTogglePin(t *testing.T) {
	a := newTestApp(t, staticNotes{"note-1": {Exists: true}})
	a.tabStore.NewTab(tabs.Options{NoteID: "note-1"})
	id := a.tabStore.CurrentTabID()

	a.togglePin()
	if tab, _ := a.tabStore.Tab(id); !tab.Pinned {
		t.Fatal("expected tab pinned")
	}
	a.togglePin()
	if tab, _ := a.tabStore.Tab(id); tab.Pinned {
		t.Fatal("expected tab unpinned")
	}
}
