// Package attachment manages media referenced from note content:
// download-by-hash with per-note cancellation groups, and extraction of
// hash references from serialized content for sync-time diffing.
package attachment

import (
	"context"
	"encoding/hex"
	"log/slog"
	"regexp"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// refPattern matches hash references embedded in serialized content,
// e.g. <img data-hash="a1b2...">.
var refPattern = regexp.MustCompile(`data-hash="([0-9a-f]+)"`)

// Downloader fetches attachment payloads by hash. Implementations are
// expected to honor context cancellation.
type Downloader interface {
	Download(ctx context.Context, hash string) ([]byte, error)
	Exists(hash string) (bool, error)
}

// Manager tracks which attachments have been fetched per note and owns
// the cancellation group for each note's in-flight downloads.
type Manager struct {
	mu     sync.Mutex
	dl     Downloader
	logger *slog.Logger
	// loaded[noteID][hash] is false while a download is in flight and
	// true once it completed; an absent key means never requested.
	loaded map[string]map[string]bool
	groups map[string]*group
}

// group is one note's download scope; all of its fetches share ctx.
type group struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a manager over the given downloader.
func NewManager(dl Downloader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		dl:     dl,
		logger: logger,
		loaded: make(map[string]map[string]bool),
		groups: make(map[string]*group),
	}
}

// DownloadGroup starts background downloads for every hash not already
// requested for the note. A previous in-flight group for the same note
// keeps running; CancelGroup stops everything for the note.
func (m *Manager) DownloadGroup(noteID string, hashes []string) {
	m.mu.Lock()
	pending := make([]string, 0, len(hashes))
	if m.loaded[noteID] == nil {
		m.loaded[noteID] = make(map[string]bool)
	}
	for _, h := range hashes {
		if _, requested := m.loaded[noteID][h]; requested {
			continue
		}
		m.loaded[noteID][h] = false
		pending = append(pending, h)
	}
	if len(pending) == 0 {
		m.mu.Unlock()
		return
	}

	g, ok := m.groups[noteID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		g = &group{ctx: ctx, cancel: cancel}
		m.groups[noteID] = g
	}
	ctx := g.ctx
	m.mu.Unlock()

	go func() {
		for _, h := range pending {
			if ctx.Err() != nil {
				return
			}
			if _, err := m.dl.Download(ctx, h); err != nil {
				if ctx.Err() == nil {
					m.logger.Warn("attachment download failed", "note", noteID, "hash", h, "err", err)
				}
				continue
			}
			m.mu.Lock()
			if group, ok := m.loaded[noteID]; ok {
				group[h] = true
			}
			m.mu.Unlock()
		}
	}()
}

// CancelGroup aborts the note's in-flight downloads and forgets its
// loaded-state so a later open refetches.
func (m *Manager) CancelGroup(noteID string) {
	m.mu.Lock()
	g, ok := m.groups[noteID]
	delete(m.groups, noteID)
	delete(m.loaded, noteID)
	m.mu.Unlock()
	if ok {
		g.cancel()
	}
}

// Loaded reports whether a hash finished downloading for a note.
func (m *Manager) Loaded(noteID, hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[noteID][hash]
}

// MarkLoaded records a hash as already present (e.g. verified on disk).
func (m *Manager) MarkLoaded(noteID, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded[noteID] == nil {
		m.loaded[noteID] = make(map[string]bool)
	}
	m.loaded[noteID][hash] = true
}

// Exists reports whether the underlying store has the attachment.
func (m *Manager) Exists(hash string) (bool, error) {
	return m.dl.Exists(hash)
}

// Fetch downloads a single attachment outside any note group, for
// one-off requests like serving bytes to the editor surface.
func (m *Manager) Fetch(hash string) ([]byte, error) {
	return m.dl.Download(context.Background(), hash)
}

// Refs extracts the attachment hash references from serialized content,
// deduplicated in first-seen order.
func Refs(content string) []string {
	matches := refPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var refs []string
	for _, match := range matches {
		h := match[1]
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		refs = append(refs, h)
	}
	return refs
}

// NewRefs returns the hashes referenced by new content that the old
// content did not reference. Used after sync reconciliation to fetch
// only newly-introduced media.
func NewRefs(oldContent, newContent string) []string {
	old := make(map[string]struct{})
	for _, h := range Refs(oldContent) {
		old[h] = struct{}{}
	}
	var fresh []string
	for _, h := range Refs(newContent) {
		if _, ok := old[h]; !ok {
			fresh = append(fresh, h)
		}
	}
	return fresh
}

// Hash computes the content hash used to key attachments.
func Hash(data []byte) string {
	sum := xxhash.Sum64(data)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(sum >> (8 * (7 - i)))
	}
	return hex.EncodeToString(b[:])
}
