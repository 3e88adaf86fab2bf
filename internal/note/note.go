// Package note implements the persisted note store: notes, their
// content records, tag relations, notebooks, and per-session content
// versions. All timestamps are unix milliseconds; sync reconciliation
// compares them directly.
package note

import "strings"

// ContentTypeHTML is the serialization type produced by the embedded
// editor surface.
const ContentTypeHTML = "html"

// Note is the persisted note metadata record. Body content lives in a
// separate content record referenced by ContentID.
type Note struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Headline    string `json:"headline"`
	ContentID   string `json:"contentId"`
	Pinned      bool   `json:"pinned"`
	Locked      bool   `json:"locked"`
	Readonly    bool   `json:"readonly"`
	Conflicted  bool   `json:"conflicted"`
	DateCreated int64  `json:"dateCreated"`
	DateEdited  int64  `json:"dateEdited"`
}

// Content is a note's body. When Locked, Data holds vault-sealed
// ciphertext rather than serialized markup.
type Content struct {
	ID         string `json:"id"`
	NoteID     string `json:"noteId"`
	Type       string `json:"type"`
	Data       string `json:"data"`
	Locked     bool   `json:"locked"`
	DateEdited int64  `json:"dateEdited"`
}

// SavePayload carries one save operation into the store. Title and Data
// are applied only when their Has flag is set, so title-only and
// content-only saves do not clobber the other field.
type SavePayload struct {
	ID       string
	Title    string
	HasTitle bool
	Data     string
	HasData  bool
	Type     string
	Locked   bool
	// SessionID is the history-session stamp grouping this save into a
	// version entry. Zero means no version tracking for this save.
	SessionID int64
}

// Version is one content-history entry, keyed by the history session
// that produced it.
type Version struct {
	NoteID     string
	SessionID  int64
	Data       string
	DateEdited int64
}

// Headline derives the list-preview text from serialized content:
// markup stripped, whitespace collapsed, truncated to 220 runes.
func Headline(data string) string {
	fields := strings.Fields(PlainText(data))
	joined := strings.Join(fields, " ")
	runes := []rune(joined)
	if len(runes) > 220 {
		return string(runes[:220])
	}
	return joined
}

// PlainText strips markup from serialized content. Block boundaries
// become spaces; entities other than &nbsp; are left alone.
func PlainText(data string) string {
	return stripTags(data)
}

func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(b.String(), "&nbsp;", " ")
}
