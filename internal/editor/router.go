package editor

import (
	"encoding/base64"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"

	"github.com/marcus/notedeck/internal/attachment"
	"github.com/marcus/notedeck/internal/event"
	"github.com/marcus/notedeck/internal/tabs"
)

// TabNav is the slice of the tab store the router drives.
type TabNav interface {
	TabStore
	OpenNote(noteID string, inNewTab bool) int
	FocusTab(id int)
	FocusEmptyTab() int
	GoBack() bool
	GoForward() bool
}

// Router turns raw surface messages into host actions. Every stateful
// message must carry the session id the surface was last handed; a
// mismatch means the message raced a navigation and it is dropped. The
// note id is always derived from the tab, never trusted from the wire.
type Router struct {
	bus    *event.Dispatcher
	tabs   TabNav
	ctrl   *Controller
	ch     *Channel
	cmd    *Commands
	attach *attachment.Manager
	logger *slog.Logger

	// copyText and openURL are swappable for tests.
	copyText func(string) error
	openURL  func(string) error

	mu       sync.Mutex
	awaiting map[string]time.Time // attachment hashes with an answer in flight
	now      func() time.Time
}

// awaitWindow suppresses duplicate attachment-data requests while the
// first answer is still being produced.
const awaitWindow = time.Second

// NewRouter wires the message dispatch.
func NewRouter(bus *event.Dispatcher, tabNav TabNav, ctrl *Controller, ch *Channel, cmd *Commands, attach *attachment.Manager, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		bus:      bus,
		tabs:     tabNav,
		ctrl:     ctrl,
		ch:       ch,
		cmd:      cmd,
		attach:   attach,
		logger:   logger,
		copyText: clipboard.WriteAll,
		openURL:  func(string) error { return nil },
		awaiting: make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetOpener installs the external-URL handler.
func (r *Router) SetOpener(open func(string) error) { r.openURL = open }

// HandleMessage processes one raw message from the surface. Malformed
// or unknown messages are logged and dropped; the surface must never be
// able to wedge the host.
func (r *Router) HandleMessage(raw []byte) {
	env, err := Parse(raw)
	if err != nil {
		r.logger.Warn("bad editor message", "err", err)
		return
	}

	// Correlation replies and liveness probes bypass the guard.
	switch env.Type {
	case TypeResult:
		r.ch.Resolve(env.ResolverID, env.Value)
		return
	case TypeStatus:
		return
	}

	tab, ok := r.tabs.Tab(env.TabID)
	if !ok {
		r.logger.Debug("message for unknown tab", "type", env.Type, "tab", env.TabID)
		return
	}
	if env.SessionID != tab.Session.ID {
		r.logger.Debug("dropping message from stale session",
			"type", env.Type, "tab", env.TabID, "session", env.SessionID)
		return
	}

	switch env.Type {
	case TypeContentChanged:
		change, err := decode[ContentChange](env.Value)
		if err != nil {
			r.logger.Warn("bad content change", "err", err)
			return
		}
		if change.IgnoreEdit {
			return
		}
		r.ctrl.QueueContent(env.TabID, env.SessionID, change.Content)

	case TypeTitleChanged:
		change, err := decode[TitleChange](env.Value)
		if err != nil {
			r.logger.Warn("bad title change", "err", err)
			return
		}
		r.ctrl.QueueTitle(env.TabID, env.SessionID, change.Title)

	case TypeSelectionChanged:
		sel, err := decode[SelectionChange](env.Value)
		if err != nil {
			return
		}
		session := tab.Session
		session.SelectionFrom = sel.From
		session.SelectionTo = sel.To
		r.tabs.UpdateTab(env.TabID, tabs.TabFields{Session: &session})

	case TypeScrolled:
		scroll, err := decode[ScrollChange](env.Value)
		if err != nil {
			return
		}
		session := tab.Session
		session.ScrollTop = scroll.Top
		r.tabs.UpdateTab(env.TabID, tabs.TabFields{Session: &session})

	case TypeSaveRequested:
		r.ctrl.SaveNow(env.TabID)

	case TypeNewNote:
		r.tabs.FocusEmptyTab()

	case TypeTagAdded:
		change, err := decode[TagChange](env.Value)
		if err != nil {
			return
		}
		r.ctrl.AddTag(env.TabID, change.Tag)

	case TypeTagRemoved:
		change, err := decode[TagChange](env.Value)
		if err != nil {
			return
		}
		r.ctrl.RemoveTag(env.TabID, change.Tag)

	case TypeCreateLink:
		r.bus.Publish(event.LinkPick, env.TabID)

	case TypeLink:
		link, err := decode[LinkRequest](env.Value)
		if err != nil {
			return
		}
		r.followLink(tab.NoteID, link.Href)

	case TypeCopyText:
		req, err := decode[CopyRequest](env.Value)
		if err != nil {
			return
		}
		if err := r.copyText(req.Text); err != nil {
			r.logger.Warn("clipboard write failed", "err", err)
		}

	case TypeAttachmentData:
		req, err := decode[AttachmentRequest](env.Value)
		if err != nil {
			return
		}
		r.serveAttachment(req.Hash)

	case TypePreviewMedia:
		req, err := decode[AttachmentRequest](env.Value)
		if err != nil {
			return
		}
		r.bus.Publish(event.AttachmentPreview, req.Hash)

	case TypePickAttachment:
		r.bus.Publish(event.AttachmentPick, env.TabID)

	case TypeGoBack:
		r.tabs.GoBack()

	case TypeGoForward:
		r.tabs.GoForward()

	case TypeShowTabs:
		r.bus.Publish(event.ShowTabs, nil)

	case TypeTabFocus:
		req, err := decode[TabFocusRequest](env.Value)
		if err != nil {
			return
		}
		r.tabs.FocusTab(req.TabID)

	case TypeFullscreen:
		// No specific handling; the fan-out below reaches subscribers.

	case TypeUnlock:
		r.bus.Publish(event.VaultUnlockRequired, tab.NoteID)

	default:
		r.logger.Debug("unknown editor message", "type", env.Type)
	}

	// Every accepted message is also re-broadcast under its own type so
	// any host component can observe the surface without a router hook.
	r.bus.Publish(env.Type, env)
}

// followLink resolves note://<id>#<anchor> links internally; anything
// else goes to the system opener.
func (r *Router) followLink(currentNoteID, href string) {
	if !strings.HasPrefix(href, "note://") {
		if err := r.openURL(href); err != nil {
			r.logger.Warn("external link failed", "href", href, "err", err)
		}
		return
	}
	u, err := url.Parse(href)
	if err != nil {
		r.logger.Warn("bad note link", "href", href, "err", err)
		return
	}
	target := u.Host
	if target == "" {
		target = strings.Trim(u.Path, "/")
	}
	if target == "" {
		return
	}
	if target == currentNoteID {
		if u.Fragment != "" {
			r.cmd.ScrollToAnchor(u.Fragment)
		}
		return
	}
	r.tabs.OpenNote(target, false)
	if u.Fragment != "" {
		r.cmd.ScrollToAnchor(u.Fragment)
	}
}

// serveAttachment answers a data request once; repeats within the await
// window are dropped while the first answer is in flight.
func (r *Router) serveAttachment(hash string) {
	r.mu.Lock()
	now := r.now()
	if at, ok := r.awaiting[hash]; ok && now.Sub(at) < awaitWindow {
		r.mu.Unlock()
		return
	}
	for h, at := range r.awaiting {
		if now.Sub(at) >= awaitWindow {
			delete(r.awaiting, h)
		}
	}
	r.awaiting[hash] = now
	r.mu.Unlock()

	go func() {
		data, err := r.attach.Fetch(hash)
		if err != nil {
			r.logger.Warn("attachment fetch failed", "hash", hash, "err", err)
			return
		}
		if err := r.cmd.SendAttachmentData(hash, base64.StdEncoding.EncodeToString(data)); err != nil {
			r.logger.Warn("attachment delivery failed", "hash", hash, "err", err)
		}
	}()
}
