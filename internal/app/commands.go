package app

import (
	"context"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/api"
	"github.com/nhle/worknotify/internal/backlog"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/navigate"
	"github.com/nhle/worknotify/internal/ui/command"
)

// permissionTimeout bounds the desktop notification capability probe.
const permissionTimeout = 5 * time.Second

// executeCommand handles a command from the command palette.
func (m Model) executeCommand(c command.CommandMsg) (tea.Model, tea.Cmd) {
	switch c.Name {
	case command.Refresh:
		return m, m.refresh()
	case command.ReadAll:
		if s := m.store(); s != nil {
			s.MarkAllAsRead()
		}
		return m, nil
	case command.Clear:
		if s := m.store(); s != nil {
			s.ClearAll()
		}
		return m, nil
	case command.LocalTest:
		m.addLocalTest()
		return m, nil
	case command.ServerTest:
		cmd := m.sendServerTest()
		return m, cmd
	case command.Board:
		return m.switchView(ViewBoard)
	case command.Inbox:
		return m.switchView(ViewInbox)
	case command.SwitchUser:
		id, err := strconv.ParseInt(c.Arg, 10, 64)
		if err != nil || id <= 0 {
			m.setStatus("Usage: user <id>", true)
			return m, nil
		}
		m.setStatus("Switching to user "+c.Arg, false)
		return m, m.openSession(id)
	case command.Logout:
		cmd := m.logout()
		m.setStatus("Logged out", false)
		return m, cmd
	case command.Settings:
		cmd := m.openSettings()
		return m, cmd
	case command.Quit:
		return m, m.quit()
	}
	return m, nil
}

// openNotification marks n read and moves to the board view on its task.
func (m Model) openNotification(n model.Notification) (tea.Model, tea.Cmd) {
	if s := m.store(); s != nil && !n.IsRead {
		s.MarkAsRead(n.ID)
	}
	target := navigate.ResolveNotification(n)
	if target == nil {
		m.setStatus("This notification is not linked to a task", false)
		return m, nil
	}
	m.previousView = m.currentView
	m.currentView = ViewBoard
	cmd := m.boardView.NavigateTo(target)
	return m, cmd
}

// addLocalTest inserts a sample notification without contacting the
// backend.
func (m *Model) addLocalTest() {
	s := m.store()
	if s == nil {
		m.setStatus("No active session", true)
		return
	}
	n := s.Add(backlog.Random(m.now(), m.testSeq))
	m.testSeq++
	m.logger.Debug("local test notification added", zap.Int64("notification_id", n.ID))
}

// sendServerTest asks the backend to push a test notification to the
// current user.
func (m *Model) sendServerTest() tea.Cmd {
	if m.client == nil || m.sess == nil {
		m.setStatus("Server test needs a backend and an active session", true)
		return nil
	}
	sample := backlog.Samples(m.now())[0]
	req := api.TestRequest{
		UserID:   m.sess.UserID(),
		Type:     sample.Type,
		Title:    "Test notification",
		Message:  "This is a test notification from the server",
		Metadata: sample.Metadata,
	}
	client, timeout := m.client, m.cfg.API.Timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := client.SendTest(ctx, req)
		return serverTestMsg{err: err}
	}
}

// requestPermission probes desktop notification support once per session.
func (m Model) requestPermission() tea.Cmd {
	s := m.store()
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), permissionTimeout)
		defer cancel()
		return permissionMsg{granted: s.RequestNotificationPermission(ctx)}
	}
}
