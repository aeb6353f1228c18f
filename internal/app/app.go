package app

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/api"
	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/keys"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/notify"
	"github.com/nhle/worknotify/internal/realtime"
	"github.com/nhle/worknotify/internal/session"
	appsync "github.com/nhle/worknotify/internal/sync"
	"github.com/nhle/worknotify/internal/ui"
	"github.com/nhle/worknotify/internal/ui/board"
	"github.com/nhle/worknotify/internal/ui/command"
	helpview "github.com/nhle/worknotify/internal/ui/help"
	"github.com/nhle/worknotify/internal/ui/inbox"
	"github.com/nhle/worknotify/internal/ui/settings"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewBoard
	ViewSettings
	ViewHelp
	ViewCommand
)

// Options wires the root model to its collaborators.
type Options struct {
	Config     *model.AppConfig
	ConfigPath string

	// Token is the API token resolved at startup.
	Token string

	// Client is nil when no backend is configured.
	Client   *api.Client
	Alerter  notify.Alerter
	Renderer *enrich.Renderer
	Tokens   settings.TokenStore
	Logger   *zap.Logger
	Version  string

	Now func() time.Time
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the live notification session.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	ready        bool

	cfg      *model.AppConfig
	token    string
	client   *api.Client
	alerter  notify.Alerter
	renderer *enrich.Renderer
	logger   *zap.Logger
	now      func() time.Time

	manager *session.Manager
	states  chan stateMsg
	sess    *session.Session
	unsub   func()

	inboxView    inbox.Model
	boardView    board.Model
	settingsView settings.Model
	helpView     helpview.Model
	commandView  command.Model

	connState string
	status    string
	statusErr bool
	testSeq   int
}

// New creates the root application model.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = enrich.NewRenderer(opts.Config.Display.Locale)
	}
	k := keys.DefaultKeyMap()

	m := Model{
		currentView: ViewInbox,
		keys:        k,
		cfg:         opts.Config,
		token:       opts.Token,
		client:      opts.Client,
		alerter:     opts.Alerter,
		renderer:    renderer,
		logger:      logger,
		now:         now,
		states:      make(chan stateMsg, 16),
		connState:   realtime.StateDisconnected.String(),

		inboxView:    inbox.New(renderer, k, 80, 22),
		settingsView: settings.New(opts.ConfigPath, opts.Tokens, k, 80, 22),
		helpView:     helpview.New(k, opts.Version, 80, 22),
		commandView:  command.New(80, 22),
	}
	m.boardView = board.New(m.loader(), k, opts.Config.Navigation.SettleDelay(), 80, 22)
	m.manager = session.NewManager(session.ConfigFrom(m.cfg, m.token), m.sessionDeps())
	return m
}

// loader returns the hierarchy source for the board view. A nil client is
// returned as a nil interface so the view reports it as unconfigured.
func (m Model) loader() board.Loader {
	if m.client == nil {
		return nil
	}
	return m.client
}

// Init opens the configured user's session, or the settings form on first
// run when no user is configured.
func (m Model) Init() tea.Cmd {
	if m.cfg.UserID <= 0 {
		return func() tea.Msg { return needSetupMsg{} }
	}
	return tea.Batch(
		m.openSession(m.cfg.UserID),
		m.waitForState(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inboxView.SetSize(w, h)
		m.boardView.SetSize(w, h)
		m.settingsView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case needSetupMsg:
		m.setStatus("Set a user id to start receiving notifications", false)
		cmd := m.openSettings()
		return m, tea.Batch(cmd, m.waitForState())

	case sessionOpenedMsg:
		return m.handleSessionOpened(msg)

	case snapshotMsg:
		return m.handleSnapshot(msg)

	case stateMsg:
		if m.sess != nil && msg.userID == m.sess.UserID() {
			m.connState = msg.state.String()
		}
		return m, m.waitForState()

	case appsync.CountResultMsg:
		return m.handleCountResult(msg)

	case reloadedMsg:
		if msg.err != nil {
			m.setStatus("Refresh failed: "+msg.err.Error(), true)
		} else {
			m.setStatus("Loaded "+msg.source+" notifications", false)
		}
		return m, nil

	case permissionMsg:
		if msg.granted {
			m.setStatus("Desktop notifications enabled", false)
		}
		return m, nil

	case serverTestMsg:
		if msg.err != nil {
			m.setStatus("Server test failed: "+msg.err.Error(), true)
		} else {
			m.setStatus("Test notification sent", false)
		}
		return m, nil

	case inbox.OpenMsg:
		return m.openNotification(msg.Notification)

	case inbox.MarkReadMsg:
		if s := m.store(); s != nil {
			s.MarkAsRead(msg.ID)
		}
		return m, nil

	case inbox.MarkAllReadMsg:
		if s := m.store(); s != nil {
			s.MarkAllAsRead()
		}
		return m, nil

	case inbox.ClearAllMsg:
		if s := m.store(); s != nil {
			s.ClearAll()
		}
		return m, nil

	case inbox.LocalTestMsg:
		m.addLocalTest()
		return m, nil

	case inbox.ServerTestMsg:
		cmd := m.sendServerTest()
		return m, cmd

	case inbox.PermissionRequestMsg:
		return m, m.requestPermission()

	case board.CloseMsg:
		return m.switchView(ViewInbox)

	case settings.DoneMsg:
		m.currentView = m.returnView()
		return m, nil

	case settings.SavedMsg:
		return m.handleSettingsSaved(msg)

	case command.CommandMsg:
		m.commandView.Blur()
		m.currentView = m.previousView
		return m.executeCommand(msg)

	case command.UnknownCommandMsg:
		m.commandView.Blur()
		m.currentView = m.previousView
		m.setStatus("Unknown command: "+msg.Input, true)
		return m, nil

	case tea.KeyMsg:
		m.status = ""
		if next, cmd, handled := m.handleGlobalKey(msg); handled {
			return next, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work regardless of the active view.
// Views that capture text input only see ctrl+c and esc here.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, m.quit(), true
	}

	switch m.currentView {
	case ViewSettings:
		return m, nil, false
	case ViewCommand:
		if key.Matches(msg, m.keys.Back) {
			m.commandView.Blur()
			m.currentView = m.previousView
			return m, nil, true
		}
		return m, nil, false
	case ViewInbox:
		if m.inboxView.Confirming() {
			return m, nil, false
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.currentView == ViewInbox || m.currentView == ViewBoard {
			return m, m.quit(), true
		}

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.returnView()
		m.currentView = ViewCommand
		cmd := m.commandView.Focus()
		return m, cmd, true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}

	case key.Matches(msg, m.keys.Inbox):
		next, cmd := m.switchView(ViewInbox)
		return next, cmd, true

	case key.Matches(msg, m.keys.Board):
		if m.currentView != ViewBoard {
			next, cmd := m.switchView(ViewBoard)
			return next, cmd, true
		}

	case key.Matches(msg, m.keys.Settings):
		cmd := m.openSettings()
		return m, cmd, true

	case key.Matches(msg, m.keys.Refresh):
		if m.currentView == ViewInbox {
			return m, m.refresh(), true
		}
	}
	return m, nil, false
}

// returnView is the view to go back to from an overlay.
func (m Model) returnView() ViewState {
	switch m.currentView {
	case ViewHelp, ViewCommand, ViewSettings:
		if m.previousView == ViewHelp || m.previousView == ViewCommand || m.previousView == ViewSettings {
			return ViewInbox
		}
		return m.previousView
	default:
		return m.currentView
	}
}

// switchView activates one of the main views.
func (m Model) switchView(v ViewState) (tea.Model, tea.Cmd) {
	m.previousView = m.currentView
	m.currentView = v
	switch v {
	case ViewInbox:
		cmd := m.inboxView.Open()
		return m, cmd
	case ViewBoard:
		if m.boardView.BoardID() == 0 {
			cmd := m.boardView.Browse()
			return m, cmd
		}
	}
	return m, nil
}

func (m *Model) openSettings() tea.Cmd {
	m.previousView = m.returnView()
	m.currentView = ViewSettings
	return m.settingsView.Edit(m.cfg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inboxView, cmd = m.inboxView.Update(msg)
	case ViewBoard:
		m.boardView, cmd = m.boardView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	// The board view schedules its own follow-up messages; they must reach
	// it even after the user switched away.
	if m.currentView != ViewBoard && m.boardView.Owns(msg) {
		var boardCmd tea.Cmd
		m.boardView, boardCmd = m.boardView.Update(msg)
		cmd = tea.Batch(cmd, boardCmd)
	}
	return m, cmd
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m Model) store() *notify.Store {
	if m.sess == nil {
		return nil
	}
	return m.sess.Store()
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "WorkNotify"
	if m.sess != nil {
		title += " · user " + strconv.FormatInt(m.sess.UserID(), 10)
	}
	header := m.layout.RenderHeader(title, m.inboxView.Snapshot().Badge(), m.connState)
	content := m.renderContent()

	status, isErr := m.status, m.statusErr
	if status == "" && m.currentView == ViewBoard {
		status, isErr = m.boardView.Status()
	}
	statusBar := m.layout.RenderStatusBar(m.keyHints(), status, isErr)

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewInbox:
		return m.inboxView.View()
	case ViewBoard:
		return m.boardView.View()
	case ViewSettings:
		return m.settingsView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewSettings:
		return "enter next | esc cancel"
	case ViewBoard:
		return "enter open | esc back | r reload | i inbox | q quit"
	default:
		return "enter open | m read | M read all | X clear | t test | b boards | : command | ? help"
	}
}
