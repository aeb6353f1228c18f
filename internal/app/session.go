package app

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/api"
	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/notify"
	"github.com/nhle/worknotify/internal/realtime"
	"github.com/nhle/worknotify/internal/session"
	appsync "github.com/nhle/worknotify/internal/sync"
	"github.com/nhle/worknotify/internal/theme"
	"github.com/nhle/worknotify/internal/ui/board"
	"github.com/nhle/worknotify/internal/ui/inbox"
	"github.com/nhle/worknotify/internal/ui/settings"
)

// needSetupMsg is sent at startup when no user is configured.
type needSetupMsg struct{}

// sessionOpenedMsg is sent when a session switch finished.
type sessionOpenedMsg struct {
	session *session.Session
	err     error
}

// snapshotMsg carries a store snapshot from a session subscription.
type snapshotMsg struct {
	sessionID string
	snapshot  notify.Snapshot
	ch        <-chan notify.Snapshot
}

// stateMsg reports a realtime connection state change.
type stateMsg struct {
	userID int64
	state  realtime.State
}

// reloadedMsg is sent after a manual backlog refresh.
type reloadedMsg struct {
	source string
	err    error
}

type permissionMsg struct {
	granted bool
}

type serverTestMsg struct {
	err error
}

// sessionDeps builds the shared collaborators for new sessions. State
// changes are forwarded to the UI through m.states without blocking the
// realtime goroutine.
func (m Model) sessionDeps() session.Deps {
	states := m.states
	return session.Deps{
		Client:  m.client,
		Alerter: m.alerter,
		Logger:  m.logger,
		OnState: func(userID int64, s realtime.State) {
			select {
			case states <- stateMsg{userID: userID, state: s}:
			default:
			}
		},
	}
}

// openSession returns a command that switches the manager to userID.
func (m Model) openSession(userID int64) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		s, err := mgr.Switch(context.Background(), userID)
		return sessionOpenedMsg{session: s, err: err}
	}
}

func (m Model) handleSessionOpened(msg sessionOpenedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if errors.Is(msg.err, session.ErrNoUser) {
			m.setStatus("Set a user id in settings", true)
		} else {
			m.setStatus("Could not start session: "+msg.err.Error(), true)
		}
		return m, nil
	}
	s := msg.session
	// A later switch already replaced this session.
	if s != m.manager.Current() || s == m.sess {
		return m, nil
	}

	if m.unsub != nil {
		m.unsub()
	}
	m.sess = s
	ch, unsub := s.Store().Subscribe()
	m.unsub = unsub
	m.connState = s.State().String()
	m.logger.Info("session active", zap.Int64("user_id", s.UserID()), zap.String("session_id", s.ID()))

	cmds := []tea.Cmd{waitForSnapshot(s.ID(), ch)}
	if p := s.Poller(); p != nil {
		cmds = append(cmds, p.WaitForNextResult())
	}
	if m.currentView == ViewInbox {
		cmds = append(cmds, m.inboxView.Open())
	}
	return m, tea.Batch(cmds...)
}

// waitForSnapshot blocks on the subscription until the next snapshot. A
// closed channel ends the loop.
func waitForSnapshot(sessionID string, ch <-chan notify.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{sessionID: sessionID, snapshot: snap, ch: ch}
	}
}

func (m Model) handleSnapshot(msg snapshotMsg) (tea.Model, tea.Cmd) {
	if m.sess == nil || msg.sessionID != m.sess.ID() {
		return m, nil
	}
	var cmd tea.Cmd
	m.inboxView, cmd = m.inboxView.Update(inbox.SnapshotMsg{Snapshot: msg.snapshot})
	if msg.snapshot.Err != nil {
		m.setStatus("Server rejected "+string(msg.snapshot.Err.Action)+": "+msg.snapshot.Err.Err.Error(), true)
	}
	return m, tea.Batch(cmd, waitForSnapshot(msg.sessionID, msg.ch))
}

// waitForState returns a command delivering the next realtime state change.
func (m Model) waitForState() tea.Cmd {
	states := m.states
	return func() tea.Msg {
		return <-states
	}
}

func (m Model) handleCountResult(msg appsync.CountResultMsg) (tea.Model, tea.Cmd) {
	if m.sess == nil || msg.UserID != m.sess.UserID() || m.sess.Poller() == nil {
		return m, nil
	}
	switch {
	case msg.AuthError != nil:
		m.setStatus(msg.AuthError.Message, true)
	case msg.Error != nil:
		m.logger.Debug("count poll failed", zap.Error(msg.Error))
	}
	return m, m.sess.Poller().WaitForNextResult()
}

// refresh reloads the backlog and polls the count once.
func (m Model) refresh() tea.Cmd {
	s := m.sess
	if s == nil {
		return nil
	}
	if p := s.Poller(); p != nil {
		p.RefreshNow()
	}
	return func() tea.Msg {
		res, ok := s.Reload(context.Background())
		if !ok {
			return reloadedMsg{err: errors.New("session is closed")}
		}
		if res.Err != nil {
			return reloadedMsg{source: res.Source.String(), err: res.Err}
		}
		return reloadedMsg{source: res.Source.String()}
	}
}

// logout ends the current session and clears the inbox.
func (m *Model) logout() tea.Cmd {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	m.sess = nil
	m.connState = realtime.StateDisconnected.String()
	m.inboxView, _ = m.inboxView.Update(inbox.SnapshotMsg{})
	mgr := m.manager
	return func() tea.Msg {
		_ = mgr.Logout()
		return nil
	}
}

func (m Model) quit() tea.Cmd {
	m.logger.Info("quitting")
	return tea.Quit
}

// Close ends the live session. Call it after the program exits.
func (m Model) Close() error {
	if m.unsub != nil {
		m.unsub()
	}
	return m.manager.Logout()
}

// handleSettingsSaved applies new settings and restarts the session with
// them.
func (m Model) handleSettingsSaved(msg settings.SavedMsg) (tea.Model, tea.Cmd) {
	m.currentView = m.returnView()
	if msg.Err != nil {
		m.setStatus("Saving settings failed: "+msg.Err.Error(), true)
		return m, nil
	}

	prev := m.cfg
	cfg := msg.Config
	m.cfg = cfg
	if msg.Token != "" {
		m.token = msg.Token
	}
	theme.Use(cfg.Display.Theme)

	if cfg.Display.Locale != prev.Display.Locale {
		snap := m.inboxView.Snapshot()
		m.renderer = enrich.NewRenderer(cfg.Display.Locale)
		m.inboxView = inbox.New(m.renderer, m.keys, m.layout.ContentWidth(), m.layout.ContentHeight())
		m.inboxView, _ = m.inboxView.Update(inbox.SnapshotMsg{Snapshot: snap})
	}
	if m.client == nil || cfg.API.BaseURL != prev.API.BaseURL || msg.Token != "" {
		m.client = api.NewClient(cfg.API.BaseURL, m.token, cfg.API.Timeout())
	}
	m.boardView = board.New(m.loader(), m.keys, cfg.Navigation.SettleDelay(), m.layout.ContentWidth(), m.layout.ContentHeight())

	old := m.manager
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	m.sess = nil
	m.connState = realtime.StateDisconnected.String()
	m.manager = session.NewManager(session.ConfigFrom(cfg, m.token), m.sessionDeps())
	m.setStatus("Settings saved", false)

	mgr, userID := m.manager, cfg.UserID
	return m, func() tea.Msg {
		_ = old.Logout()
		s, err := mgr.Switch(context.Background(), userID)
		return sessionOpenedMsg{session: s, err: err}
	}
}
