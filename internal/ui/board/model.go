// Package board shows the workspace hierarchy and lands on a task when a
// notification is opened.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/worknotify/internal/keys"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/navigate"
	"github.com/nhle/worknotify/internal/theme"
)

const loadTimeout = 15 * time.Second

// Loader fetches the hierarchy. *api.Client satisfies it.
type Loader interface {
	LoadTree(ctx context.Context) ([]model.Workspace, error)
	LoadBoard(ctx context.Context, boardID int64) ([]model.Group, error)
}

// CloseMsg asks the app to leave the board view.
type CloseMsg struct{}

type treeLoadedMsg struct {
	seq        int
	workspaces []model.Workspace
	target     *navigate.Target
	err        error
}

type boardLoadedMsg struct {
	seq     int
	boardID int64
	groups  []model.Group
	err     error
}

type settledMsg struct {
	seq int
}

type row struct {
	group model.Group
	task  *model.Task
}

// Model is the board view.
type Model struct {
	loader Loader
	keys   *keys.KeyMap
	settle time.Duration

	// seq invalidates in-flight loads when a newer navigation starts.
	seq     int
	loading bool
	spinner spinner.Model

	workspaces  []model.Workspace
	workspaceID int64
	boardID     int64
	groups      []model.Group
	collapsed   map[int64]bool

	pending *navigate.Plan
	filter  navigate.Filter

	cursor    int
	status    string
	statusErr bool

	width, height int
}

// New creates a board view. settle is the delay between expanding a board
// and applying a navigation filter.
func New(loader Loader, k *keys.KeyMap, settle time.Duration, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)
	return Model{
		loader:    loader,
		keys:      k,
		settle:    settle,
		spinner:   sp,
		collapsed: make(map[int64]bool),
		width:     width,
		height:    height,
	}
}

// Browse reloads the tree without a navigation target.
func (m *Model) Browse() tea.Cmd {
	return m.load(nil)
}

// NavigateTo loads the tree and lands on target. A nil target leaves the
// view on the workspace list with a status message.
func (m *Model) NavigateTo(target *navigate.Target) tea.Cmd {
	if target == nil {
		m.seq++
		m.setError("no task details to navigate to")
		return nil
	}
	return m.load(target)
}

func (m *Model) load(target *navigate.Target) tea.Cmd {
	if m.loader == nil {
		m.setError("backend is not configured")
		return nil
	}
	m.seq++
	m.loading = true
	m.pending = nil
	m.filter = navigate.Filter{}
	m.status = ""
	seq, loader := m.seq, m.loader
	fetch := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		ws, err := loader.LoadTree(ctx)
		return treeLoadedMsg{seq: seq, workspaces: ws, target: target, err: err}
	}
	return tea.Batch(fetch, m.spinner.Tick)
}

func (m *Model) openBoard(workspaceID, boardID int64) tea.Cmd {
	m.seq++
	m.loading = true
	m.workspaceID = workspaceID
	m.boardID = boardID
	m.groups = nil
	m.cursor = 0
	seq, loader := m.seq, m.loader
	fetch := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		groups, err := loader.LoadBoard(ctx, boardID)
		return boardLoadedMsg{seq: seq, boardID: boardID, groups: groups, err: err}
	}
	return tea.Batch(fetch, m.spinner.Tick)
}

// Update handles messages for the board view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case treeLoadedMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		return m.handleTree(msg)

	case boardLoadedMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		return m.handleBoard(msg)

	case settledMsg:
		if msg.seq != m.seq || m.pending == nil {
			return m, nil
		}
		m.filter = m.pending.Filter
		m.pending = nil
		m.cursor = m.firstTaskRow()
		if !m.filter.Empty() && len(m.filter.Apply(m.groups)) == 0 {
			m.setError("task not found on this board")
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleTree(msg treeLoadedMsg) (Model, tea.Cmd) {
	m.loading = false
	if msg.err != nil {
		m.setError("load workspaces: " + msg.err.Error())
		return m, nil
	}
	m.workspaces = msg.workspaces
	m.cursor = 0

	if msg.target == nil {
		if m.boardID != 0 && m.findBoard(m.boardID) != nil {
			cmd := m.openBoard(m.workspaceID, m.boardID)
			return m, cmd
		}
		m.boardID = 0
		return m, nil
	}

	plan, err := navigate.NewPlan(m.workspaces, msg.target, m.settle)
	if err != nil {
		m.boardID = 0
		var nf *navigate.NotFoundError
		if errors.As(err, &nf) {
			m.setError(nf.Error())
		} else {
			m.setError(err.Error())
		}
		return m, nil
	}
	cmd := m.openBoard(plan.WorkspaceID, plan.BoardID)
	m.pending = &plan
	return m, cmd
}

func (m Model) handleBoard(msg boardLoadedMsg) (Model, tea.Cmd) {
	m.loading = false
	if msg.err != nil {
		m.pending = nil
		m.setError("load board: " + msg.err.Error())
		return m, nil
	}
	m.groups = msg.groups
	m.collapsed = make(map[int64]bool)
	if m.pending == nil {
		for _, g := range m.groups {
			m.collapsed[g.ID] = len(m.groups) > 1
		}
		return m, nil
	}

	// ExpandAll leaves collapsed empty; the filter is applied once the
	// groups have had time to render.
	seq, delay := m.seq, m.pending.SettleDelay
	return m, tea.Tick(delay, func(time.Time) tea.Msg { return settledMsg{seq: seq} })
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		switch {
		case !m.filter.Empty():
			m.filter = navigate.Filter{}
			m.status = ""
			return m, nil
		case m.boardID != 0:
			m.seq++
			m.loading = false
			m.pending = nil
			m.boardID = 0
			m.groups = nil
			m.cursor = 0
			return m, nil
		}
		return m, func() tea.Msg { return CloseMsg{} }

	case key.Matches(msg, m.keys.Refresh):
		cmd := m.Browse()
		return m, cmd

	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.rowCount()-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if m.boardID == 0 {
			boards := m.boardList()
			if m.cursor < len(boards) {
				b := boards[m.cursor]
				cmd := m.openBoard(b.WorkspaceID, b.ID)
				return m, cmd
			}
			return m, nil
		}
		rows := m.rows()
		if m.cursor < len(rows) && rows[m.cursor].task == nil {
			id := rows[m.cursor].group.ID
			m.collapsed[id] = !m.collapsed[id]
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) setError(s string) {
	m.loading = false
	m.status = s
	m.statusErr = true
}

// Status returns the current status line and whether it is an error.
func (m Model) Status() (string, bool) {
	return m.status, m.statusErr
}

// BoardID returns the open board, or 0 on the workspace list.
func (m Model) BoardID() int64 {
	return m.boardID
}

// Filter returns the row filter in effect.
func (m Model) Filter() navigate.Filter {
	return m.filter
}

// Loading reports whether a load is in flight.
func (m Model) Loading() bool {
	return m.loading
}

func (m Model) findBoard(id int64) *model.Board {
	for i := range m.workspaces {
		if b := m.workspaces[i].FindBoard(id); b != nil {
			return b
		}
	}
	return nil
}

// boardList flattens every board, stamping its workspace id.
func (m Model) boardList() []model.Board {
	var out []model.Board
	for _, ws := range m.workspaces {
		for _, b := range ws.Boards {
			b.WorkspaceID = ws.ID
			out = append(out, b)
		}
	}
	return out
}

func (m Model) rows() []row {
	var out []row
	for _, g := range m.filter.Apply(m.groups) {
		out = append(out, row{group: g})
		if m.collapsed[g.ID] {
			continue
		}
		for i := range g.Tasks {
			out = append(out, row{group: g, task: &g.Tasks[i]})
		}
	}
	return out
}

func (m Model) rowCount() int {
	if m.boardID == 0 {
		return len(m.boardList())
	}
	return len(m.rows())
}

func (m Model) firstTaskRow() int {
	for i, r := range m.rows() {
		if r.task != nil {
			return i
		}
	}
	return 0
}

// View renders the board view.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderTitle())
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString(m.spinner.View() + " Loading...")
	} else if m.boardID == 0 {
		b.WriteString(m.renderBoards())
	} else {
		b.WriteString(m.renderGroups())
	}

	if m.status != "" {
		b.WriteString("\n\n")
		if m.statusErr {
			b.WriteString(theme.ErrorStyle.Render(m.status))
		} else {
			b.WriteString(theme.DimmedStyle.Render(m.status))
		}
	}
	return b.String()
}

func (m Model) renderTitle() string {
	title := "Boards"
	if m.boardID != 0 {
		ws := model.FindWorkspace(m.workspaces, m.workspaceID)
		if b := m.findBoard(m.boardID); ws != nil && b != nil {
			title = ws.Name + " → " + b.Name
		}
	}
	if !m.filter.Empty() {
		title += theme.DimmedStyle.Render("  (filtered, esc to clear)")
	}
	return lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render(title)
}

func (m Model) renderBoards() string {
	boards := m.boardList()
	if len(boards) == 0 {
		return theme.DimmedStyle.Render("No boards.")
	}
	names := make(map[int64]string, len(m.workspaces))
	for _, ws := range m.workspaces {
		names[ws.ID] = ws.Name
	}
	lines := make([]string, len(boards))
	for i, b := range boards {
		line := fmt.Sprintf("%s / %s", names[b.WorkspaceID], b.Name)
		lines[i] = m.renderRow(i, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderGroups() string {
	rows := m.rows()
	if len(rows) == 0 {
		return theme.DimmedStyle.Render("No tasks.")
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		var line string
		if r.task == nil {
			arrow := "▾"
			if m.collapsed[r.group.ID] {
				arrow = "▸"
			}
			line = fmt.Sprintf("%s %s (%d)", arrow, r.group.Name, len(r.group.Tasks))
		} else {
			line = "    " + r.task.Name
			if r.task.Status != "" {
				line += theme.DimmedStyle.Render("  " + r.task.Status)
			}
		}
		lines[i] = m.renderRow(i, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(i int, line string) string {
	if i == m.cursor {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// SetSize updates the board view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Owns reports whether msg is one the board view scheduled for itself.
// Such messages must be delivered even while another view is active.
func (m Model) Owns(msg tea.Msg) bool {
	switch msg.(type) {
	case treeLoadedMsg, boardLoadedMsg, settledMsg, spinner.TickMsg:
		return true
	}
	return false
}
