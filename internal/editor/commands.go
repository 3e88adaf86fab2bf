package editor

import (
	"encoding/json"
	"fmt"
	"time"
)

// Commands is the named command set the host issues to the surface.
// Most commands are fire-and-confirm over the channel's default
// timeout; content transfers use the longer content timeout.
type Commands struct {
	ch             *Channel
	timeout        time.Duration
	contentTimeout time.Duration
}

// NewCommands wraps a channel. Zero timeouts fall back to the defaults.
func NewCommands(ch *Channel, timeout, contentTimeout time.Duration) *Commands {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if contentTimeout <= 0 {
		contentTimeout = ContentTimeout
	}
	return &Commands{ch: ch, timeout: timeout, contentTimeout: contentTimeout}
}

func (c *Commands) call(op string, args any) error {
	_, err := c.ch.Invoke(op, args, c.timeout)
	return err
}

// Focus moves keyboard focus into the editor.
func (c *Commands) Focus() error { return c.call("focus", nil) }

// Blur removes keyboard focus from the editor.
func (c *Commands) Blur() error { return c.call("blur", nil) }

// ClearContent empties the editor without generating an edit event.
func (c *Commands) ClearContent() error { return c.call("clearContent", nil) }

// SetSessionID tells the surface which session its subsequent messages
// belong to; the router drops messages tagged with anything else.
func (c *Commands) SetSessionID(sessionID string) error {
	return c.call("setSessionId", sessionID)
}

// SetStatus updates the saved/sync status line.
func (c *Commands) SetStatus(date int64, saved bool) error {
	return c.call("setStatus", map[string]any{"date": date, "saved": saved})
}

// SetTitle replaces the title field without generating an edit event.
func (c *Commands) SetTitle(title string) error {
	return c.call("setTitle", title)
}

// SetPlaceholder sets the text shown in an empty editor.
func (c *Commands) SetPlaceholder(text string) error {
	return c.call("setPlaceholder", text)
}

// SetTags replaces the tag strip.
func (c *Commands) SetTags(tags []string) error { return c.call("setTags", tags) }

// ClearTags empties the tag strip.
func (c *Commands) ClearTags() error { return c.call("clearTags", nil) }

// ContentOptions carries the extended SetContent parameters.
type ContentOptions struct {
	Content       string `json:"content"`
	SessionID     string `json:"sessionId"`
	Readonly      bool   `json:"readonly,omitempty"`
	ScrollTop     int    `json:"scrollTop,omitempty"`
	SelectionFrom int    `json:"selectionFrom,omitempty"`
	SelectionTo   int    `json:"selectionTo,omitempty"`
}

// SetContent replaces the document. This is the load path: it swaps the
// session id first so stale edit events from the previous document are
// rejected by the affinity guard.
func (c *Commands) SetContent(opts ContentOptions) error {
	_, err := c.ch.Invoke("setContent", opts, c.contentTimeout)
	return err
}

// UpdateContent applies externally-changed content (sync) to the open
// document while preserving the local cursor where possible.
func (c *Commands) UpdateContent(content, sessionID string) error {
	_, err := c.ch.Invoke("updateContent", map[string]string{
		"content":   content,
		"sessionId": sessionID,
	}, c.contentTimeout)
	return err
}

// Settings is the editor configuration pushed on load and on change.
type Settings struct {
	Readonly      bool   `json:"readonly"`
	DoubleSpaced  bool   `json:"doubleSpaced"`
	FontFamily    string `json:"fontFamily,omitempty"`
	FontSize      int    `json:"fontSize,omitempty"`
	DateFormat    string `json:"dateFormat,omitempty"`
	TimeFormat    string `json:"timeFormat,omitempty"`
	Markdown      bool   `json:"markdownShortcuts"`
	CornerButtons bool   `json:"cornerButtons"`
}

// SetSettings pushes editor configuration.
func (c *Commands) SetSettings(s Settings) error { return c.call("setSettings", s) }

// InsertAttachment inserts a reference to an uploaded attachment at the
// cursor.
func (c *Commands) InsertAttachment(hash, filename string, size int) error {
	return c.call("insertAttachment", map[string]any{
		"hash":     hash,
		"filename": filename,
		"size":     size,
	})
}

// SendAttachmentData delivers requested attachment bytes (base64) to
// the surface.
func (c *Commands) SendAttachmentData(hash, data string) error {
	return c.call("attachmentData", map[string]string{"hash": hash, "data": data})
}

// ScrollToAnchor scrolls the document to a named heading.
func (c *Commands) ScrollToAnchor(anchor string) error {
	return c.call("scrollToAnchor", anchor)
}

// TOCEntry is one heading in the document outline.
type TOCEntry struct {
	Title  string `json:"title"`
	Level  int    `json:"level"`
	Anchor string `json:"anchor"`
}

// TableOfContents asks the surface for the document outline.
func (c *Commands) TableOfContents() ([]TOCEntry, error) {
	raw, err := c.ch.Invoke("tableOfContents", nil, c.timeout)
	if err != nil {
		return nil, err
	}
	var toc []TOCEntry
	if err := json.Unmarshal(raw, &toc); err != nil {
		return nil, fmt.Errorf("decode table of contents: %w", err)
	}
	return toc, nil
}
