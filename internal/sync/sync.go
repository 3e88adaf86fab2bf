// Package sync applies remote changes dropped into the sync inbox
// directory. Each record is a JSON file holding a note or content
// snapshot; records are merged last-write-wins on their timestamps and
// consumed, and interested components hear about applied notes on the
// event bus.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marcus/notedeck/internal/event"
	"github.com/marcus/notedeck/internal/note"
)

// debounceDelay batches bursts of inbox writes; sync clients tend to
// land several record files at once.
const debounceDelay = 100 * time.Millisecond

// Item is one sync record.
type Item struct {
	Kind    string        `json:"kind"` // "note" or "content"
	Note    *note.Note    `json:"note,omitempty"`
	Content *note.Content `json:"content,omitempty"`
}

// Merger reconciles a record into local storage.
type Merger interface {
	Merge(n *note.Note, c *note.Content) error
}

// Watcher consumes the inbox directory.
type Watcher struct {
	dir     string
	store   Merger
	bus     *event.Dispatcher
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// New sets up a watcher over dir, creating the directory if needed.
func New(dir string, store Merger, bus *event.Dispatcher, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sync inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch sync inbox: %w", err)
	}
	return &Watcher{
		dir:     dir,
		store:   store,
		bus:     bus,
		logger:  logger,
		watcher: fw,
	}, nil
}

// Start drains records already in the inbox, then follows filesystem
// events until the context ends. Bursts are coalesced with a short
// debounce before each sweep.
func (w *Watcher) Start(ctx context.Context) {
	w.sweep()

	go func() {
		defer w.watcher.Close()
		var timer *time.Timer
		sweep := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if !strings.HasSuffix(ev.Name, ".json") {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceDelay, func() {
					select {
					case sweep <- struct{}{}:
					default:
					}
				})
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("sync watcher error", "err", err)
			case <-sweep:
				w.sweep()
			}
		}
	}()
}

// sweep applies and consumes every record currently in the inbox, in
// name order so producers can sequence records lexicographically.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("sync inbox scan failed", "err", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.applyFile(path); err != nil {
			w.logger.Warn("sync record failed", "file", entry.Name(), "err", err)
			continue
		}
		if err := os.Remove(path); err != nil {
			w.logger.Warn("sync record cleanup failed", "file", entry.Name(), "err", err)
		}
	}
}

func (w *Watcher) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read record: %w", err)
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	noteID := ""
	switch item.Kind {
	case "note":
		if item.Note == nil {
			return fmt.Errorf("note record without note")
		}
		noteID = item.Note.ID
	case "content":
		if item.Content == nil {
			return fmt.Errorf("content record without content")
		}
		noteID = item.Content.NoteID
	default:
		return fmt.Errorf("unknown record kind %q", item.Kind)
	}

	if err := w.store.Merge(item.Note, item.Content); err != nil {
		return fmt.Errorf("merge record: %w", err)
	}
	w.bus.Publish(event.SyncApplied, noteID)
	return nil
}
