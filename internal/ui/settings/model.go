package settings

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/worknotify/internal/keys"
	"github.com/nhle/worknotify/internal/model"
)

// TokenStore persists API tokens. *credential.Vault satisfies it.
type TokenStore interface {
	SetToken(userID int64, token string) error
}

// DoneMsg signals the settings view should close without saving.
type DoneMsg struct{}

// SavedMsg is sent after the settings were written.
type SavedMsg struct {
	Config *model.AppConfig

	// Token is the newly entered token, empty when unchanged.
	Token string
	Err   error
}

// fields holds the values huh binds to. It lives on the heap so the form
// keeps pointing at it across Model copies.
type fields struct {
	userID   string
	baseURL  string
	wsURL    string
	locale   string
	theme    string
	policy   string
	fallback string
	desktop  bool
	sound    bool
	token    string
}

// Model is the settings form.
type Model struct {
	path   string
	tokens TokenStore
	keys   *keys.KeyMap

	base   *model.AppConfig
	form   *huh.Form
	values *fields

	width, height int
}

// New creates a settings view writing to path.
func New(path string, tokens TokenStore, k *keys.KeyMap, width, height int) Model {
	return Model{
		path:   path,
		tokens: tokens,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Edit resets the form to cfg and focuses it.
func (m *Model) Edit(cfg *model.AppConfig) tea.Cmd {
	c := *cfg
	m.base = &c
	m.values = &fields{
		baseURL:  cfg.API.BaseURL,
		wsURL:    cfg.Realtime.URL,
		locale:   cfg.Display.Locale,
		theme:    cfg.Display.Theme,
		policy:   cfg.Notifications.ConfirmPolicy,
		fallback: cfg.Notifications.OfflineFallback,
		desktop:  cfg.Notifications.Desktop,
		sound:    cfg.Notifications.Sound,
	}
	if cfg.UserID != 0 {
		m.values.userID = strconv.FormatInt(cfg.UserID, 10)
	}
	m.form = m.buildForm()
	return m.form.Init()
}

func (m *Model) buildForm() *huh.Form {
	v := m.values
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("User ID").
				Description("Numeric id of the user whose notifications are shown").
				Value(&v.userID).
				Validate(validateUserID),
			huh.NewInput().
				Title("API URL").
				Placeholder("http://localhost:8080/api").
				Value(&v.baseURL).
				Validate(validateURL("http", "https")),
			huh.NewInput().
				Title("WebSocket URL").
				Placeholder("ws://localhost:8080/ws").
				Value(&v.wsURL).
				Validate(validateURL("ws", "wss")),
			huh.NewInput().
				Title("API Token").
				Description("Leave empty to keep the stored token").
				EchoMode(huh.EchoModePassword).
				Value(&v.token),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Language").
				Options(
					huh.NewOption("English", "en-US"),
					huh.NewOption("Tiếng Việt", "vi"),
				).
				Value(&v.locale),
			huh.NewSelect[string]().
				Title("Theme").
				Options(
					huh.NewOption("Auto", "default"),
					huh.NewOption("Dark", "dark"),
					huh.NewOption("Light", "light"),
				).
				Value(&v.theme),
			huh.NewSelect[string]().
				Title("When the server rejects an action").
				Options(
					huh.NewOption("Keep the local change", "keep"),
					huh.NewOption("Roll it back", "rollback"),
				).
				Value(&v.policy),
			huh.NewSelect[string]().
				Title("When the backend is unreachable").
				Options(
					huh.NewOption("Show sample notifications", "samples"),
					huh.NewOption("Show an empty inbox", "empty"),
				).
				Value(&v.fallback),
			huh.NewConfirm().
				Title("Desktop notifications").
				Value(&v.desktop),
			huh.NewConfirm().
				Title("Sound").
				Value(&v.sound),
		),
	).WithWidth(m.formWidth())
}

// Active reports whether a form is being edited.
func (m Model) Active() bool {
	return m.form != nil
}

// Update handles messages for the settings view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, m.keys.Back) {
		m.form = nil
		return m, func() tea.Msg { return DoneMsg{} }
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.form = nil
		return m, m.save()
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return DoneMsg{} }
	}
	return m, cmd
}

// apply returns base updated with the form values.
func (f *fields) apply(base *model.AppConfig) *model.AppConfig {
	c := *base
	c.UserID, _ = strconv.ParseInt(strings.TrimSpace(f.userID), 10, 64)
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(f.baseURL), "/")
	c.Realtime.URL = strings.TrimSpace(f.wsURL)
	c.Display.Locale = f.locale
	c.Display.Theme = f.theme
	c.Notifications.ConfirmPolicy = f.policy
	c.Notifications.OfflineFallback = f.fallback
	c.Notifications.Desktop = f.desktop
	c.Notifications.Sound = f.sound
	return &c
}

func (m Model) save() tea.Cmd {
	cfg := m.values.apply(m.base)
	token := strings.TrimSpace(m.values.token)
	path, tokens := m.path, m.tokens
	return func() tea.Msg {
		if err := model.SaveConfig(path, cfg); err != nil {
			return SavedMsg{Config: cfg, Err: err}
		}
		if token != "" && tokens != nil {
			if err := tokens.SetToken(cfg.UserID, token); err != nil {
				return SavedMsg{Config: cfg, Err: fmt.Errorf("storing token: %w", err)}
			}
		}
		return SavedMsg{Config: cfg, Token: token}
	}
}

// View renders the settings form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Render(m.form.View())
}

// SetSize updates the settings view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func validateUserID(s string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

func validateURL(schemes ...string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("URL is required")
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid URL")
		}
		for _, sc := range schemes {
			if u.Scheme == sc {
				return nil
			}
		}
		return fmt.Errorf("URL must start with %s://", strings.Join(schemes, ":// or "))
	}
}
