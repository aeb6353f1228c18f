package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/worknotify/internal/keys"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/navigate"
	"github.com/nhle/worknotify/internal/testutil"
)

type fakeLoader struct {
	mu      sync.Mutex
	tree    []model.Workspace
	treeErr error
	boards  []int64
}

func (f *fakeLoader) LoadTree(context.Context) ([]model.Workspace, error) {
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	out := make([]model.Workspace, len(f.tree))
	for i, ws := range f.tree {
		out[i] = ws
		out[i].Boards = make([]model.Board, len(ws.Boards))
		for j, b := range ws.Boards {
			out[i].Boards[j] = model.Board{ID: b.ID, Name: b.Name, WorkspaceID: ws.ID}
		}
	}
	return out, nil
}

func (f *fakeLoader) LoadBoard(_ context.Context, boardID int64) ([]model.Group, error) {
	f.mu.Lock()
	f.boards = append(f.boards, boardID)
	f.mu.Unlock()
	for _, ws := range f.tree {
		if b := ws.FindBoard(boardID); b != nil {
			return b.Groups, nil
		}
	}
	return nil, errors.New("no such board")
}

func newTestBoard(loader Loader) Model {
	return New(loader, keys.DefaultKeyMap(), 10*time.Millisecond, 100, 30)
}

// drain runs cmd and every command it produces, feeding board messages back
// into m. Other messages are returned.
func drain(t *testing.T, m Model, cmd tea.Cmd) (Model, []tea.Msg) {
	t.Helper()
	var out []tea.Msg
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 100)
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case spinner.TickMsg:
		case treeLoadedMsg, boardLoadedMsg, settledMsg:
			var next tea.Cmd
			m, next = m.Update(msg)
			queue = append(queue, next)
		default:
			out = append(out, msg)
		}
	}
	return m, out
}

func press(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNavigateByIDs(t *testing.T) {
	loader := &fakeLoader{tree: testutil.Hierarchy()}
	m := newTestBoard(loader)

	cmd := m.NavigateTo(&navigate.Target{WorkspaceID: 2, BoardID: 20, TaskID: 2000, BoardName: "Sprint", TaskName: "Fix login"})
	m, _ = drain(t, m, cmd)

	assert.Equal(t, int64(20), m.BoardID())
	assert.Equal(t, []int64{20}, loader.boards)
	assert.Equal(t, int64(2000), m.Filter().TaskID)
	assert.False(t, m.Loading())

	view := m.View()
	assert.Contains(t, view, "Side → Sprint")
	assert.Contains(t, view, "Fix login")
	assert.Contains(t, view, "filtered")
}

func TestNavigateByNamesShowsOnlyTarget(t *testing.T) {
	m := newTestBoard(&fakeLoader{tree: testutil.Hierarchy()})

	cmd := m.NavigateTo(&navigate.Target{WorkspaceName: "Main", BoardName: "Sprint", GroupName: "To-Do", TaskName: "Fix login"})
	m, _ = drain(t, m, cmd)

	require.Equal(t, int64(10), m.BoardID())
	view := m.View()
	assert.Contains(t, view, "To-Do (1)")
	assert.NotContains(t, view, "Write docs")
	assert.NotContains(t, view, "Done")

	// first esc clears the filter
	m, _ = m.Update(press("esc"))
	assert.True(t, m.Filter().Empty())
	assert.Contains(t, m.View(), "Write docs")
}

func TestFilterWaitsForSettle(t *testing.T) {
	m := newTestBoard(&fakeLoader{tree: testutil.Hierarchy()})
	m.NavigateTo(&navigate.Target{WorkspaceID: 1, BoardID: 10, TaskID: 1001})

	tree, err := (&fakeLoader{tree: testutil.Hierarchy()}).LoadTree(context.Background())
	require.NoError(t, err)
	m, cmd := m.Update(treeLoadedMsg{seq: m.seq, workspaces: tree, target: &navigate.Target{WorkspaceID: 1, BoardID: 10, TaskID: 1001}})
	require.NotNil(t, cmd)
	require.Equal(t, int64(10), m.BoardID())

	m, cmd = m.Update(boardLoadedMsg{seq: m.seq, boardID: 10, groups: testutil.Hierarchy()[0].Boards[0].Groups})
	require.NotNil(t, cmd, "settle tick scheduled")
	assert.True(t, m.Filter().Empty())
	view := m.View()
	assert.Contains(t, view, "Write docs")
	assert.Contains(t, view, "Done (1)", "all groups expanded")

	m, _ = m.Update(settledMsg{seq: m.seq})
	assert.Equal(t, int64(1001), m.Filter().TaskID)
	assert.NotContains(t, m.View(), "Done (1)")
}

func TestNotFoundIsStatusMessage(t *testing.T) {
	m := newTestBoard(&fakeLoader{tree: testutil.Hierarchy()})

	m, _ = drain(t, m, m.NavigateTo(&navigate.Target{WorkspaceName: "Nope", BoardName: "Sprint"}))
	status, isErr := m.Status()
	assert.True(t, isErr)
	assert.Equal(t, `workspace "Nope" not found`, status)
	assert.Zero(t, m.BoardID())

	m, _ = drain(t, m, m.NavigateTo(&navigate.Target{WorkspaceID: 1, BoardName: "Roadmap"}))
	status, _ = m.Status()
	assert.Equal(t, `board "Roadmap" not found`, status)
}

func TestStaleLoadIgnored(t *testing.T) {
	m := newTestBoard(&fakeLoader{tree: testutil.Hierarchy()})

	first := m.NavigateTo(&navigate.Target{WorkspaceID: 1, BoardID: 10})
	second := m.NavigateTo(&navigate.Target{WorkspaceID: 2, BoardID: 20})

	m, _ = drain(t, m, first)
	assert.Zero(t, m.BoardID(), "superseded load does nothing")

	m, _ = drain(t, m, second)
	assert.Equal(t, int64(20), m.BoardID())
}

func TestBrowseAndOpen(t *testing.T) {
	loader := &fakeLoader{tree: testutil.Hierarchy()}
	m := newTestBoard(loader)

	m, _ = drain(t, m, m.Browse())
	view := m.View()
	assert.Contains(t, view, "Main / Sprint")
	assert.Contains(t, view, "Main / Backlog")
	assert.Contains(t, view, "Side / Sprint")

	m, _ = m.Update(press("down"))
	m, _ = m.Update(press("down"))
	m, cmd := m.Update(press("enter"))
	m, _ = drain(t, m, cmd)
	assert.Equal(t, int64(20), m.BoardID())
	assert.True(t, m.Filter().Empty())

	m, _ = m.Update(press("esc"))
	assert.Zero(t, m.BoardID())
	_, cmd = m.Update(press("esc"))
	require.NotNil(t, cmd)
	assert.Equal(t, CloseMsg{}, cmd())
}

func TestLoadError(t *testing.T) {
	m := newTestBoard(&fakeLoader{treeErr: errors.New("boom")})
	m, _ = drain(t, m, m.Browse())
	status, isErr := m.Status()
	assert.True(t, isErr)
	assert.Contains(t, status, "boom")
}

func TestNilTarget(t *testing.T) {
	m := newTestBoard(&fakeLoader{tree: testutil.Hierarchy()})
	assert.Nil(t, m.NavigateTo(nil))
	status, isErr := m.Status()
	assert.True(t, isErr)
	assert.NotEmpty(t, status)
}
