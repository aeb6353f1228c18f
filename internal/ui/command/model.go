package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/worknotify/internal/theme"
)

// Name identifies a palette command.
type Name string

const (
	Refresh    Name = "refresh"
	ReadAll    Name = "read all"
	Clear      Name = "clear"
	LocalTest  Name = "test"
	ServerTest Name = "send test"
	Board      Name = "board"
	Inbox      Name = "inbox"
	SwitchUser Name = "user"
	Logout     Name = "logout"
	Settings   Name = "settings"
	Quit       Name = "quit"
)

// aliases maps accepted spellings to commands.
var aliases = map[string]Name{
	"refresh":       Refresh,
	"sync":          Refresh,
	"read all":      ReadAll,
	"mark all read": ReadAll,
	"clear":         Clear,
	"clear all":     Clear,
	"test":          LocalTest,
	"send test":     ServerTest,
	"board":         Board,
	"boards":        Board,
	"inbox":         Inbox,
	"user":          SwitchUser,
	"logout":        Logout,
	"settings":      Settings,
	"config":        Settings,
	"quit":          Quit,
	"q":             Quit,
}

// CommandMsg is emitted when the user executes a recognized command.
type CommandMsg struct {
	Name Name
	Arg  string
}

// UnknownCommandMsg is emitted for input that matches no command.
type UnknownCommandMsg struct {
	Input string
}

// Parse resolves palette input. The last word is taken as an argument
// when the full input is not itself a command.
func Parse(input string) (CommandMsg, bool) {
	input = strings.Join(strings.Fields(strings.ToLower(input)), " ")
	if name, ok := aliases[input]; ok {
		return CommandMsg{Name: name}, true
	}
	i := strings.LastIndexByte(input, ' ')
	if i < 0 {
		return CommandMsg{}, false
	}
	if name, ok := aliases[input[:i]]; ok {
		return CommandMsg{Name: name, Arg: input[i+1:]}, true
	}
	return CommandMsg{}, false
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEnter {
		raw := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if raw == "" {
			return m, nil
		}
		return m, func() tea.Msg {
			if c, ok := Parse(raw); ok {
				return c
			}
			return UnknownCommandMsg{Input: raw}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command Palette")

	content := lipgloss.JoinVertical(lipgloss.Left, title, m.input.View())

	return theme.PanelStyle.
		Width(max(m.width-4, 20)).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}

// Blur releases keyboard focus.
func (m *Model) Blur() {
	m.input.Blur()
	m.input.Reset()
}
