// Package app is the terminal host: it wires storage, tabs, the editor
// pipeline, and sync together and presents them as a bubbletea program.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/notedeck/internal/attachment"
	"github.com/marcus/notedeck/internal/config"
	"github.com/marcus/notedeck/internal/editor"
	"github.com/marcus/notedeck/internal/event"
	"github.com/marcus/notedeck/internal/history"
	"github.com/marcus/notedeck/internal/msg"
	"github.com/marcus/notedeck/internal/note"
	"github.com/marcus/notedeck/internal/styles"
	"github.com/marcus/notedeck/internal/surface/gojaview"
	syncpkg "github.com/marcus/notedeck/internal/sync"
	"github.com/marcus/notedeck/internal/tabs"
	"github.com/marcus/notedeck/internal/vault"
)

// noteChecker adapts the note store to the tab store's lookup needs.
type noteChecker struct {
	store *note.Store
}

func (c noteChecker) NoteState(id string) tabs.NoteInfo {
	n, err := c.store.Note(id)
	if err != nil || n == nil {
		return tabs.NoteInfo{}
	}
	return tabs.NoteInfo{Exists: true, Locked: n.Locked, Readonly: n.Readonly}
}

// App is the root bubbletea model.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	bus    *event.Dispatcher

	notes    *note.Store
	sessions *tabs.SQLiteStore
	tabStore *tabs.Store
	surface  *gojaview.View
	cmds     *editor.Commands
	ctrl     *editor.Controller
	router   *editor.Router
	safe     *vault.Vault
	attach   *attachment.Manager
	syncer   *syncpkg.Watcher

	events     chan tea.Msg
	syncCancel context.CancelFunc
	keys       keyMap

	width, height int
	list          []note.Note
	selected      int
	focusList     bool
	toast         string
	toastError    bool

	vaultPrompt bool
	vaultNoteID string
	password    textinput.Model
}

// New builds the fully wired application.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	notes, err := note.Open(filepath.Join(cfg.Storage.DataDir, "notes.db"))
	if err != nil {
		return nil, err
	}
	sessions, err := tabs.OpenSQLite(filepath.Join(cfg.Storage.DataDir, "sessions.db"))
	if err != nil {
		notes.Close()
		return nil, err
	}

	bus := event.NewWithLogger(logger)
	tabStore := tabs.New(sessions, noteChecker{notes}, bus, logger)

	surface, err := gojaview.New(logger)
	if err != nil {
		notes.Close()
		sessions.Close()
		return nil, err
	}

	ch := editor.NewChannel(surface, logger)
	cmds := editor.NewCommands(ch, cfg.Editor.CommandTimeout, cfg.Editor.ContentTimeout)

	files, err := attachment.NewFileStore(cfg.Storage.AttachmentsDir)
	if err != nil {
		notes.Close()
		sessions.Close()
		surface.Close()
		return nil, err
	}
	attach := attachment.NewManager(files, logger)
	safe := vault.New(notes)

	ctrl := editor.NewController(notes, history.New(), tabStore, safe, attach, cmds, bus, logger,
		editor.Config{Debounce: cfg.Editor.SaveDebounce})
	router := editor.NewRouter(bus, tabStore, ctrl, ch, cmds, attach, logger)
	surface.OnMessage(router.HandleMessage)

	password := textinput.New()
	password.Placeholder = "vault password"
	password.EchoMode = textinput.EchoPassword

	a := &App{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		notes:    notes,
		sessions: sessions,
		tabStore: tabStore,
		surface:  surface,
		cmds:     cmds,
		ctrl:     ctrl,
		router:   router,
		safe:     safe,
		attach:   attach,
		events:   make(chan tea.Msg, 64),
		keys:     defaultKeyMap(),
		password: password,
	}
	a.subscribe()

	cmds.SetSettings(editor.Settings{
		DoubleSpaced:  cfg.Editor.DoubleSpaced,
		FontFamily:    cfg.Editor.FontFamily,
		FontSize:      cfg.Editor.FontSize,
		DateFormat:    cfg.Editor.DateFormat,
		TimeFormat:    cfg.Editor.TimeFormat,
		Markdown:      cfg.Editor.MarkdownShortcuts,
		CornerButtons: true,
	})

	tabStore.Restore()

	if cfg.Sync.Enabled {
		syncer, err := syncpkg.New(cfg.Sync.InboxDir, notes, bus, logger)
		if err != nil {
			logger.Warn("sync disabled", "err", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			a.syncer = syncer
			a.syncCancel = cancel
			syncer.Start(ctx)
		}
	}

	styles.ApplyTheme(cfg.UI.Theme)
	return a, nil
}

// subscribe forwards bus events into the update loop. The channel drops
// on overflow; every handler reloads full state so a lost notification
// only delays a refresh until the next one.
func (a *App) subscribe() {
	forward := func(name string) {
		a.bus.Subscribe(name, func(payload any) {
			select {
			case a.events <- msg.BusMsg{Name: name, Payload: payload}:
			default:
			}
		})
	}
	for _, name := range []string{
		event.TabsChanged,
		event.TabFocused,
		event.NotesChanged,
		event.NoteCreated,
		event.NoteLoaded,
		event.SyncApplied,
		event.ShowTabs,
	} {
		forward(name)
	}
	a.bus.Subscribe(event.VaultUnlockRequired, func(payload any) {
		noteID, _ := payload.(string)
		select {
		case a.events <- msg.VaultPromptMsg{NoteID: noteID}:
		default:
		}
	})
}

// Close releases everything the app holds open.
func (a *App) Close() {
	if a.syncCancel != nil {
		a.syncCancel()
	}
	a.surface.Close()
	a.sessions.Close()
	a.notes.Close()
	a.bus.Close()
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.reloadNotes(), a.listenBus())
}

func (a *App) listenBus() tea.Cmd {
	return func() tea.Msg { return <-a.events }
}

type notesLoadedMsg []note.Note

func (a *App) reloadNotes() tea.Cmd {
	return func() tea.Msg {
		list, err := a.notes.List()
		if err != nil {
			a.logger.Error("note list failed", "err", err)
			return notesLoadedMsg(nil)
		}
		return notesLoadedMsg(list)
	}
}

// Update implements tea.Model.
func (a *App) Update(m tea.Msg) (tea.Model, tea.Cmd) {
	switch m := m.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		return a, nil

	case notesLoadedMsg:
		a.list = m
		if a.selected >= len(a.list) {
			a.selected = max(0, len(a.list)-1)
		}
		return a, nil

	case msg.BusMsg:
		var cmd tea.Cmd
		switch m.Name {
		case event.NotesChanged, event.NoteCreated, event.SyncApplied:
			cmd = a.reloadNotes()
		}
		return a, tea.Batch(cmd, a.listenBus())

	case msg.VaultPromptMsg:
		a.vaultPrompt = true
		a.vaultNoteID = m.NoteID
		a.password.SetValue("")
		a.password.Focus()
		return a, tea.Batch(textinput.Blink, a.listenBus())

	case msg.ToastMsg:
		a.toast = m.Message
		a.toastError = m.IsError
		d := m.Duration
		if d <= 0 {
			d = 2 * time.Second
		}
		return a, tea.Tick(d, func(time.Time) tea.Msg { return msg.ClearToastMsg{} })

	case msg.ClearToastMsg:
		a.toast = ""
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(m)
	}
	return a, nil
}
