package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/marcus/notedeck/internal/note"
	"github.com/marcus/notedeck/internal/styles"
	"github.com/marcus/notedeck/internal/tabs"
)

const (
	listWidth   = 32
	tabMaxWidth = 18
)

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "loading..."
	}

	var b strings.Builder
	if a.cfg.UI.ShowTabBar {
		b.WriteString(a.renderTabBar())
		b.WriteString("\n")
	}

	contentHeight := a.height - 2
	if a.cfg.UI.ShowTabBar {
		contentHeight--
	}
	left := a.renderList(contentHeight)
	right := a.renderEditor(contentHeight)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	b.WriteString("\n")

	if a.vaultPrompt {
		b.WriteString(a.renderVaultPrompt())
	} else if a.toast != "" {
		style := styles.ToastSuccess
		if a.toastError {
			style = styles.ToastError
		}
		b.WriteString(style.Render(a.toast))
	} else if a.cfg.UI.ShowStatusBar {
		b.WriteString(a.renderStatusBar())
	}
	return b.String()
}

func (a *App) renderTabBar() string {
	open := a.tabStore.Tabs()
	current := a.tabStore.CurrentTabID()

	parts := make([]string, 0, len(open))
	for _, t := range open {
		label := tabLabel(t, a.noteTitle(t.NoteID))
		switch {
		case t.ID == current:
			parts = append(parts, styles.TabActive.Render(label))
		case t.Pinned:
			parts = append(parts, styles.TabPinned.Render(label))
		default:
			parts = append(parts, styles.TabInactive.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// tabLabel renders one tab's caption: pin and edit markers plus the
// width-trimmed title.
func tabLabel(t tabs.Tab, title string) string {
	if title == "" {
		if t.NoteID == "" {
			title = "New tab"
		} else {
			title = "Untitled"
		}
	}
	title = runewidth.Truncate(title, tabMaxWidth, "…")
	marker := ""
	if t.Pinned {
		marker = "⚲ "
	}
	if t.Edited {
		marker += "● "
	}
	return marker + title
}

func (a *App) noteTitle(noteID string) string {
	if noteID == "" {
		return ""
	}
	for _, n := range a.list {
		if n.ID == noteID {
			return n.Title
		}
	}
	n, err := a.notes.Note(noteID)
	if err != nil || n == nil {
		return ""
	}
	return n.Title
}

func (a *App) renderList(height int) string {
	var rows []string
	rows = append(rows, styles.PanelHeader.Render("Notes"))
	for i, n := range a.list {
		title := n.Title
		if title == "" {
			title = "Untitled"
		}
		line := runewidth.Truncate(title, listWidth-4, "…")
		switch {
		case n.Locked:
			line = styles.ListLocked.Render("⚿ " + line)
		case i == a.selected && a.focusList:
			line = styles.ListSelected.Render(line)
		default:
			line = styles.ListNormal.Render(line)
		}
		rows = append(rows, line)
		if n.Headline != "" && !n.Locked {
			rows = append(rows, styles.Muted.Render(
				runewidth.Truncate(n.Headline, listWidth-4, "…")))
		}
	}
	if len(a.list) == 0 {
		rows = append(rows, styles.Muted.Render("no notes yet"))
	}

	panel := styles.PanelInactive
	if a.focusList {
		panel = styles.PanelActive
	}
	return panel.Width(listWidth).Height(height).Render(strings.Join(rows, "\n"))
}

func (a *App) renderEditor(height int) string {
	width := a.width - listWidth - 4
	if width < 20 {
		width = 20
	}

	tab, ok := a.tabStore.Tab(a.tabStore.CurrentTabID())
	var rows []string
	if !ok || tab.NoteID == "" {
		rows = append(rows, styles.Muted.Render("Start writing your thoughts here..."))
	} else {
		n, err := a.notes.Note(tab.NoteID)
		if err != nil || n == nil {
			rows = append(rows, styles.Muted.Render("note unavailable"))
		} else {
			title := n.Title
			if title == "" {
				title = "Untitled"
			}
			rows = append(rows, styles.Title.Render(title))
			rows = append(rows, "")
			if n.Locked && !a.safe.IsOpen() {
				rows = append(rows, styles.ListLocked.Render("⚿ This note is locked"))
			} else {
				rows = append(rows, a.renderBody(tab.NoteID, width))
			}
		}
	}

	panel := styles.PanelInactive
	if !a.focusList {
		panel = styles.PanelActive
	}
	return panel.Width(width).Height(height).Render(strings.Join(rows, "\n"))
}

func (a *App) renderBody(noteID string, width int) string {
	c, err := a.notes.ContentOf(noteID)
	if err != nil || c == nil {
		return ""
	}
	data := c.Data
	if c.Locked {
		plain, err := a.safe.Open(data)
		if err != nil {
			return styles.Muted.Render("unable to decrypt")
		}
		data = plain
	}
	return styles.Body.Width(width - 2).Render(note.PlainText(data))
}

func (a *App) renderStatusBar() string {
	var parts []string

	nav := ""
	if a.tabStore.CanGoBack() {
		nav += "←"
	}
	if a.tabStore.CanGoForward() {
		nav += "→"
	}
	if nav != "" {
		parts = append(parts, nav)
	}

	if tab, ok := a.tabStore.Tab(a.tabStore.CurrentTabID()); ok && tab.NoteID != "" {
		if n, err := a.notes.Note(tab.NoteID); err == nil && n != nil && n.DateEdited > 0 {
			parts = append(parts, "edited "+time.UnixMilli(n.DateEdited).Format("15:04"))
		}
	}
	parts = append(parts, fmt.Sprintf("%d notes", len(a.list)))

	hints := []string{
		a.keys.NewNote.Help().Key + " " + a.keys.NewNote.Help().Desc,
		a.keys.CloseTab.Help().Key + " " + a.keys.CloseTab.Help().Desc,
		a.keys.ToggleUI.Help().Key + " " + a.keys.ToggleUI.Help().Desc,
	}
	left := strings.Join(parts, "  ")
	right := styles.KeyHint.Render(strings.Join(hints, " · "))
	return styles.StatusBar.Width(a.width - lipgloss.Width(right)).Render(left) + right
}

func (a *App) renderVaultPrompt() string {
	label := "Unlock vault: "
	if exists, _ := a.safe.Exists(); !exists {
		label = "Create vault: "
	}
	return styles.StatusBar.Width(a.width).Render(label + a.password.View())
}
