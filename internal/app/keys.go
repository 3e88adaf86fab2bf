package app

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/notedeck/internal/msg"
	"github.com/marcus/notedeck/internal/tabs"
)

type keyMap struct {
	Quit      key.Binding
	NewNote   key.Binding
	NewTab    key.Binding
	CloseTab  key.Binding
	NextTab   key.Binding
	PrevTab   key.Binding
	Back      key.Binding
	Forward   key.Binding
	Save      key.Binding
	PinTab    key.Binding
	ToggleUI  key.Binding
	Up        key.Binding
	Down      key.Binding
	Open      key.Binding
	OpenNew   key.Binding
	LockVault key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		NewNote:   key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new note")),
		NewTab:    key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "new tab")),
		CloseTab:  key.NewBinding(key.WithKeys("ctrl+w"), key.WithHelp("ctrl+w", "close tab")),
		NextTab:   key.NewBinding(key.WithKeys("ctrl+right"), key.WithHelp("ctrl+→", "next tab")),
		PrevTab:   key.NewBinding(key.WithKeys("ctrl+left"), key.WithHelp("ctrl+←", "prev tab")),
		Back:      key.NewBinding(key.WithKeys("alt+left"), key.WithHelp("alt+←", "back")),
		Forward:   key.NewBinding(key.WithKeys("alt+right"), key.WithHelp("alt+→", "forward")),
		Save:      key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		PinTab:    key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "pin tab")),
		ToggleUI:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		OpenNew:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in new tab")),
		LockVault: key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "lock vault")),
	}
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.vaultPrompt {
		return a.handleVaultKey(m)
	}

	switch {
	case key.Matches(m, a.keys.Quit):
		a.Close()
		return a, tea.Quit

	case key.Matches(m, a.keys.NewNote):
		a.tabStore.FocusEmptyTab()
		return a, nil

	case key.Matches(m, a.keys.NewTab):
		a.tabStore.NewTab(tabs.Options{})
		return a, nil

	case key.Matches(m, a.keys.CloseTab):
		a.tabStore.RemoveTab(a.tabStore.CurrentTabID())
		return a, nil

	case key.Matches(m, a.keys.NextTab):
		a.cycleTab(1)
		return a, nil

	case key.Matches(m, a.keys.PrevTab):
		a.cycleTab(-1)
		return a, nil

	case key.Matches(m, a.keys.Back):
		if !a.tabStore.GoBack() {
			return a, msg.ShowToast("nothing to go back to", time.Second)
		}
		return a, nil

	case key.Matches(m, a.keys.Forward):
		if !a.tabStore.GoForward() {
			return a, msg.ShowToast("nothing to go forward to", time.Second)
		}
		return a, nil

	case key.Matches(m, a.keys.Save):
		a.ctrl.SaveNow(a.tabStore.CurrentTabID())
		return a, msg.ShowToast("saved", time.Second)

	case key.Matches(m, a.keys.PinTab):
		a.togglePin()
		return a, nil

	case key.Matches(m, a.keys.LockVault):
		a.safe.Lock()
		// Reload the focused tab so a decrypted note leaves the screen.
		if tab, ok := a.tabStore.Tab(a.tabStore.CurrentTabID()); ok && tab.NoteID != "" {
			a.tabStore.LoadSession(tab.Session.ID)
		}
		return a, msg.ShowToast("vault locked", time.Second)

	case key.Matches(m, a.keys.ToggleUI):
		a.focusList = !a.focusList
		return a, nil
	}

	if a.focusList {
		return a.handleListKey(m)
	}
	return a, nil
}

func (a *App) handleListKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Up):
		if a.selected > 0 {
			a.selected--
		}
	case key.Matches(m, a.keys.Down):
		if a.selected < len(a.list)-1 {
			a.selected++
		}
	case key.Matches(m, a.keys.Open):
		if a.selected < len(a.list) {
			a.tabStore.OpenNote(a.list[a.selected].ID, false)
			a.focusList = false
		}
	case key.Matches(m, a.keys.OpenNew):
		if a.selected < len(a.list) {
			a.tabStore.OpenNote(a.list[a.selected].ID, true)
			a.focusList = false
		}
	}
	return a, nil
}

func (a *App) handleVaultKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "esc":
		a.vaultPrompt = false
		return a, nil
	case "enter":
		password := a.password.Value()
		a.vaultPrompt = false
		return a, a.unlockVault(password)
	}
	var cmd tea.Cmd
	a.password, cmd = a.password.Update(m)
	return a, cmd
}

func (a *App) unlockVault(password string) tea.Cmd {
	exists, err := a.safe.Exists()
	if err != nil {
		return msg.ShowError("vault check failed: "+err.Error(), 3*time.Second)
	}
	if !exists {
		if err := a.safe.Create(password); err != nil {
			return msg.ShowError("vault create failed: "+err.Error(), 3*time.Second)
		}
		return msg.ShowToast("vault created", 2*time.Second)
	}
	if err := a.safe.Unlock(password); err != nil {
		return msg.ShowError("unlock failed: "+err.Error(), 3*time.Second)
	}

	// Reload the tab that hit the locked note so it renders decrypted.
	if tab, ok := a.tabStore.Tab(a.tabStore.CurrentTabID()); ok && tab.NoteID == a.vaultNoteID {
		a.tabStore.LoadSession(tab.Session.ID)
	}
	return msg.ShowToast("vault unlocked", 2*time.Second)
}

func (a *App) cycleTab(delta int) {
	open := a.tabStore.Tabs()
	if len(open) < 2 {
		return
	}
	current := a.tabStore.CurrentTabID()
	for i, t := range open {
		if t.ID == current {
			next := (i + delta + len(open)) % len(open)
			a.tabStore.FocusTab(open[next].ID)
			return
		}
	}
}

func (a *App) togglePin() {
	id := a.tabStore.CurrentTabID()
	if tab, ok := a.tabStore.Tab(id); ok {
		pinned := !tab.Pinned
		a.tabStore.UpdateTab(id, tabs.TabFields{Pinned: &pinned})
	}
}
