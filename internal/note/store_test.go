package note

import (
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAdd_CreatesNote(t *testing.T) {
	s := testStore(t)

	id, err := s.Add(SavePayload{
		Title:    "First note",
		HasTitle: true,
		Data:     "<p>Hello world</p>",
		HasData:  true,
	})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if id == "" {
		t.Fatal("Add() returned empty id")
	}

	n, err := s.Note(id)
	if err != nil {
		t.Fatalf("Note() failed: %v", err)
	}
	if n == nil {
		t.Fatal("Note() returned nil for created note")
	}
	if n.Title != "First note" {
		t.Errorf("Title = %q, want First note", n.Title)
	}
	if n.Headline != "Hello world" {
		t.Errorf("Headline = %q, want Hello world", n.Headline)
	}
	if n.ContentID == "" {
		t.Error("ContentID not set after content save")
	}
	if n.DateEdited == 0 {
		t.Error("DateEdited not set")
	}

	c, err := s.RawContent(n.ContentID)
	if err != nil {
		t.Fatalf("RawContent() failed: %v", err)
	}
	if c == nil || c.Data != "<p>Hello world</p>" {
		t.Errorf("content = %+v, want stored markup", c)
	}
}

func TestAdd_TitleOnlyKeepsContent(t *testing.T) {
	s := testStore(t)

	id, _ := s.Add(SavePayload{Data: "<p>body</p>", HasData: true})
	if _, err := s.Add(SavePayload{ID: id, Title: "Renamed", HasTitle: true}); err != nil {
		t.Fatalf("Add() title-only failed: %v", err)
	}

	n, _ := s.Note(id)
	if n.Title != "Renamed" {
		t.Errorf("Title = %q, want Renamed", n.Title)
	}
	c, _ := s.RawContent(n.ContentID)
	if c == nil || c.Data != "<p>body</p>" {
		t.Errorf("content clobbered by title-only save: %+v", c)
	}
}

func TestAdd_SameSessionOverwritesVersion(t *testing.T) {
	s := testStore(t)

	id, _ := s.Add(SavePayload{Data: "<p>a</p>", HasData: true, SessionID: 100})
	if _, err := s.Add(SavePayload{ID: id, Data: "<p>ab</p>", HasData: true, SessionID: 100}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	versions, err := s.Versions(id)
	if err != nil {
		t.Fatalf("Versions() failed: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("versions = %d, want 1 (same session overwrites)", len(versions))
	}
	if versions[0].Data != "<p>ab</p>" {
		t.Errorf("version data = %q, want latest", versions[0].Data)
	}
}

func TestAdd_NewSessionAddsVersion(t *testing.T) {
	s := testStore(t)

	id, _ := s.Add(SavePayload{Data: "<p>a</p>", HasData: true, SessionID: 100})
	if _, err := s.Add(SavePayload{ID: id, Data: "<p>b</p>", HasData: true, SessionID: 200}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	versions, _ := s.Versions(id)
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}
	if versions[0].Data != "<p>a</p>" || versions[1].Data != "<p>b</p>" {
		t.Errorf("versions = %+v, want both entries preserved", versions)
	}
}

func TestNote_Missing(t *testing.T) {
	s := testStore(t)

	n, err := s.Note("note-gone")
	if err != nil {
		t.Fatalf("Note() failed: %v", err)
	}
	if n != nil {
		t.Errorf("Note() = %+v, want nil for missing note", n)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)

	id, _ := s.Add(SavePayload{Data: "<p>x</p>", HasData: true, SessionID: 1})
	if err := s.LinkTag(id, "work"); err != nil {
		t.Fatalf("LinkTag() failed: %v", err)
	}

	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if n, _ := s.Note(id); n != nil {
		t.Error("note still present after Delete")
	}
	if versions, _ := s.Versions(id); len(versions) != 0 {
		t.Error("versions still present after Delete")
	}
	if tags, _ := s.TagsOf(id); len(tags) != 0 {
		t.Error("tag relations still present after Delete")
	}
}

func TestTags_LinkUnlink(t *testing.T) {
	s := testStore(t)
	id, _ := s.Add(SavePayload{Data: "<p>x</p>", HasData: true})

	if err := s.LinkTag(id, "work"); err != nil {
		t.Fatalf("LinkTag() failed: %v", err)
	}
	if err := s.LinkTag(id, "ideas"); err != nil {
		t.Fatalf("LinkTag() failed: %v", err)
	}
	// Relinking is idempotent.
	if err := s.LinkTag(id, "work"); err != nil {
		t.Fatalf("LinkTag() relink failed: %v", err)
	}

	tags, _ := s.TagsOf(id)
	if len(tags) != 2 || tags[0] != "ideas" || tags[1] != "work" {
		t.Errorf("TagsOf() = %v, want [ideas work]", tags)
	}

	if err := s.UnlinkTag(id, "work"); err != nil {
		t.Fatalf("UnlinkTag() failed: %v", err)
	}
	tags, _ = s.TagsOf(id)
	if len(tags) != 1 || tags[0] != "ideas" {
		t.Errorf("TagsOf() after unlink = %v, want [ideas]", tags)
	}

	// Unknown tag unlink is a no-op.
	if err := s.UnlinkTag(id, "nope"); err != nil {
		t.Errorf("UnlinkTag() unknown tag = %v, want nil", err)
	}
}

func TestMerge_PreservesRemoteTimestamp(t *testing.T) {
	s := testStore(t)

	remote := &Note{
		ID:          "note-remote1",
		Title:       "From elsewhere",
		DateCreated: 1000,
		DateEdited:  123456789,
	}
	if err := s.Merge(remote, nil); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	n, _ := s.Note("note-remote1")
	if n == nil {
		t.Fatal("merged note missing")
	}
	if n.DateEdited != 123456789 {
		t.Errorf("DateEdited = %d, want remote value 123456789", n.DateEdited)
	}
}

func TestMerge_ContentRecord(t *testing.T) {
	s := testStore(t)

	id, _ := s.Add(SavePayload{Data: "<p>local</p>", HasData: true})
	n, _ := s.Note(id)

	c := &Content{
		ID:         n.ContentID,
		NoteID:     id,
		Type:       ContentTypeHTML,
		Data:       "<p>synced</p>",
		DateEdited: n.DateEdited + 5000,
	}
	if err := s.Merge(nil, c); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	got, _ := s.RawContent(n.ContentID)
	if got.Data != "<p>synced</p>" {
		t.Errorf("content = %q, want synced data", got.Data)
	}
	after, _ := s.Note(id)
	if after.DateEdited != n.DateEdited+5000 {
		t.Errorf("DateEdited = %d, want %d", after.DateEdited, n.DateEdited+5000)
	}
}

func TestMerge_StaleContentIgnored(t *testing.T) {
	s := testStore(t)

	id, _ := s.Add(SavePayload{Data: "<p>local</p>", HasData: true})
	n, _ := s.Note(id)

	stale := &Content{
		ID:         n.ContentID,
		NoteID:     id,
		Type:       ContentTypeHTML,
		Data:       "<p>stale remote</p>",
		DateEdited: n.DateEdited - 5000,
	}
	if err := s.Merge(nil, stale); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	got, _ := s.RawContent(n.ContentID)
	if got.Data != "<p>local</p>" {
		t.Errorf("content = %q, want local data kept", got.Data)
	}
	if got.DateEdited < n.DateEdited {
		t.Errorf("content DateEdited regressed to %d, want >= %d", got.DateEdited, n.DateEdited)
	}
	after, _ := s.Note(id)
	if after.DateEdited != n.DateEdited {
		t.Errorf("note DateEdited = %d, want %d", after.DateEdited, n.DateEdited)
	}
}

func TestMerge_StaleNoteIgnored(t *testing.T) {
	s := testStore(t)

	id, _ := s.Add(SavePayload{Title: "Current", HasTitle: true})
	n, _ := s.Note(id)

	stale := &Note{
		ID:         id,
		Title:      "Old title",
		DateEdited: n.DateEdited - 5000,
	}
	if err := s.Merge(stale, nil); err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	after, _ := s.Note(id)
	if after.Title != "Current" {
		t.Errorf("title = %q, want local title kept", after.Title)
	}
	if after.DateEdited != n.DateEdited {
		t.Errorf("DateEdited = %d, want %d", after.DateEdited, n.DateEdited)
	}
}

func TestAddToDefaultNotebook(t *testing.T) {
	s := testStore(t)
	id, _ := s.Add(SavePayload{Data: "<p>x</p>", HasData: true})

	if err := s.AddToDefaultNotebook(id); err != nil {
		t.Fatalf("AddToDefaultNotebook() failed: %v", err)
	}
	// Refiling is idempotent.
	if err := s.AddToDefaultNotebook(id); err != nil {
		t.Fatalf("AddToDefaultNotebook() refile failed: %v", err)
	}
}

func TestMeta_RoundTrip(t *testing.T) {
	s := testStore(t)

	if v, _ := s.GetMeta("vault.salt"); v != "" {
		t.Errorf("GetMeta() unset = %q, want empty", v)
	}
	if err := s.SetMeta("vault.salt", "abc123"); err != nil {
		t.Fatalf("SetMeta() failed: %v", err)
	}
	if err := s.SetMeta("vault.salt", "def456"); err != nil {
		t.Fatalf("SetMeta() overwrite failed: %v", err)
	}
	if v, _ := s.GetMeta("vault.salt"); v != "def456" {
		t.Errorf("GetMeta() = %q, want def456", v)
	}
}

func TestHeadline(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"plain", "<p>Hello world</p>", "Hello world"},
		{"nested markup", "<p>Hello <b>bold</b> world</p>", "Hello bold world"},
		{"whitespace collapsed", "<p>a</p>\n\n<p>b</p>", "a b"},
		{"nbsp", "<p>a&nbsp;b</p>", "a b"},
		{"empty", "<p></p>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Headline(tt.data); got != tt.want {
				t.Errorf("Headline(%q) = %q, want %q", tt.data, got, tt.want)
			}
		})
	}
}

func TestHeadline_Truncates(t *testing.T) {
	long := "<p>"
	for i := 0; i < 100; i++ {
		long += "abcdefghi "
	}
	long += "</p>"

	got := Headline(long)
	if len([]rune(got)) != 220 {
		t.Errorf("Headline length = %d, want 220", len([]rune(got)))
	}
}

func TestDateEditedAdvances(t *testing.T) {
	s := testStore(t)

	base := time.UnixMilli(1000)
	s.SetClock(func() time.Time { return base })
	id, _ := s.Add(SavePayload{Data: "<p>a</p>", HasData: true})

	s.SetClock(func() time.Time { return time.UnixMilli(2000) })
	if _, err := s.Add(SavePayload{ID: id, Data: "<p>b</p>", HasData: true}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	n, _ := s.Note(id)
	if n.DateEdited != 2000 {
		t.Errorf("DateEdited = %d, want 2000", n.DateEdited)
	}
	if n.DateCreated != 1000 {
		t.Errorf("DateCreated = %d, want 1000", n.DateCreated)
	}
}
