// Package inbox is the notification dropdown: the feed, its unread badge,
// and the read/clear actions.
package inbox

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/keys"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/notify"
	"github.com/nhle/worknotify/internal/theme"
	"github.com/nhle/worknotify/internal/ui"
)

// SnapshotMsg delivers a new store snapshot to the inbox.
type SnapshotMsg struct {
	Snapshot notify.Snapshot
}

// OpenMsg asks the app to mark a notification read and navigate to its task.
type OpenMsg struct {
	Notification model.Notification
}

// MarkReadMsg asks the app to mark one notification read.
type MarkReadMsg struct {
	ID int64
}

// MarkAllReadMsg asks the app to mark every notification read.
type MarkAllReadMsg struct{}

// ClearAllMsg is emitted once the user confirmed clearing the feed.
type ClearAllMsg struct{}

// LocalTestMsg asks for a local sample insertion.
type LocalTestMsg struct{}

// ServerTestMsg asks the backend to send a test notification.
type ServerTestMsg struct{}

// PermissionRequestMsg is emitted the first time the inbox is opened.
type PermissionRequestMsg struct{}

// Model is the inbox view.
type Model struct {
	list     list.Model
	keys     *keys.KeyMap
	renderer *enrich.Renderer

	snapshot notify.Snapshot
	opened   bool

	confirm      *huh.Form
	confirmClear *bool

	width, height int
}

// New creates an inbox rendering text with r.
func New(r *enrich.Renderer, k *keys.KeyMap, width, height int) Model {
	return newModel(r, k, width, height, time.Now)
}

func newModel(r *enrich.Renderer, k *keys.KeyMap, width, height int, now func() time.Time) Model {
	l := list.New([]list.Item{}, Delegate{renderer: r, now: now}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetShowTitle(false)
	l.DisableQuitKeybindings()

	return Model{
		list:     l,
		keys:     k,
		renderer: r,
		width:    width,
		height:   height,
	}
}

// Open is called whenever the inbox becomes the active view. The first
// call requests desktop notification permission.
func (m *Model) Open() tea.Cmd {
	if m.opened {
		return nil
	}
	m.opened = true
	return func() tea.Msg { return PermissionRequestMsg{} }
}

// Confirming reports whether the clear-all confirmation is showing.
func (m Model) Confirming() bool {
	return m.confirm != nil
}

// Snapshot returns the last snapshot received.
func (m Model) Snapshot() notify.Snapshot {
	return m.snapshot
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.N, true
}

// Update handles messages for the inbox.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if s, ok := msg.(SnapshotMsg); ok {
		return m.applySnapshot(s.Snapshot)
	}
	if m.confirm != nil {
		return m.updateConfirm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return OpenMsg{Notification: n} }

		case key.Matches(msg, m.keys.MarkRead):
			n, ok := m.Selected()
			if !ok || n.IsRead {
				return m, nil
			}
			return m, func() tea.Msg { return MarkReadMsg{ID: n.ID} }

		case key.Matches(msg, m.keys.MarkAllRead):
			if m.snapshot.Unread == 0 {
				return m, nil
			}
			return m, func() tea.Msg { return MarkAllReadMsg{} }

		case key.Matches(msg, m.keys.ClearAll):
			if len(m.snapshot.Items) == 0 {
				return m, nil
			}
			cmd := m.startConfirm()
			return m, cmd

		case key.Matches(msg, m.keys.LocalTest):
			return m, func() tea.Msg { return LocalTestMsg{} }

		case key.Matches(msg, m.keys.ServerTest):
			return m, func() tea.Msg { return ServerTestMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) applySnapshot(s notify.Snapshot) (Model, tea.Cmd) {
	m.snapshot = s
	items := make([]list.Item, len(s.Items))
	for i, n := range s.Items {
		items[i] = Item{N: n}
	}
	cmd := m.list.SetItems(items)
	return m, cmd
}

func (m *Model) startConfirm() tea.Cmd {
	v := false
	m.confirmClear = &v
	m.confirm = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Clear all notifications?").
				Description(fmt.Sprintf("%d notifications will be removed.", len(m.snapshot.Items))).
				Affirmative("Clear").
				Negative("Cancel").
				Value(m.confirmClear),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)
	return m.confirm.Init()
}

func (m Model) updateConfirm(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, m.keys.Back) {
		m.confirm = nil
		return m, nil
	}

	mdl, cmd := m.confirm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.confirm = f
	}

	switch m.confirm.State {
	case huh.StateCompleted:
		confirmed := *m.confirmClear
		m.confirm = nil
		if confirmed {
			return m, func() tea.Msg { return ClearAllMsg{} }
		}
		return m, nil
	case huh.StateAborted:
		m.confirm = nil
		return m, nil
	}
	return m, cmd
}

// View renders the inbox.
func (m Model) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()

	var body string
	switch {
	case m.confirm != nil:
		body = theme.PanelStyle.Render(m.confirm.View())
	case len(m.snapshot.Items) == 0:
		body = lipgloss.NewStyle().
			Width(m.width).
			Height(max(m.height-2, 1)).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("🔔\nNo notifications yet.\n\nPress t to add a local test notification.")
	default:
		body = m.list.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m Model) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Render("🔔 Notifications")
	if badge := ui.BadgeText(m.snapshot.Badge()); badge != "" {
		title = lipgloss.JoinHorizontal(lipgloss.Top, title, " ", theme.BadgeStyle.Render(badge))
	}
	return title
}

func (m Model) renderFooter() string {
	s := m.snapshot
	text := fmt.Sprintf("%d notifications · %d unread", len(s.Items), s.Unread)
	if s.Err != nil {
		return theme.ErrorStyle.Render(s.Err.Error())
	}
	return theme.DimmedStyle.Render(text)
}

// SetSize updates the inbox dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, max(height-2, 1))
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w < 30 {
		w = 30
	}
	if w > 60 {
		w = 60
	}
	return w
}
