// Package navigate turns a notification's task context into a navigation
// target and plans how a hierarchy view reaches it.
package navigate

import (
	"fmt"
	"time"

	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/model"
)

// DefaultSettleDelay is how long a view waits after expanding a board before
// applying the task filter.
const DefaultSettleDelay = time.Second

// Target identifies a task by ids where known and by names otherwise.
// Zero ids are unknown.
type Target struct {
	WorkspaceID int64
	BoardID     int64
	GroupID     int64
	TaskID      int64

	WorkspaceName string
	BoardName     string
	GroupName     string
	TaskName      string
}

// Resolve builds a Target from task details. It returns nil when d is nil.
func Resolve(d *model.TaskDetails) *Target {
	if d == nil {
		return nil
	}
	t := &Target{
		TaskID:        d.TaskID,
		WorkspaceName: d.WorkspaceName,
		BoardName:     d.BoardName,
		GroupName:     d.GroupName,
		TaskName:      d.TaskName,
	}
	if d.WorkspaceID != nil {
		t.WorkspaceID = *d.WorkspaceID
	}
	if d.BoardID != nil {
		t.BoardID = *d.BoardID
	}
	if d.GroupID != nil {
		t.GroupID = *d.GroupID
	}
	return t
}

// ResolveNotification resolves n's task details, parsing metadata if needed.
// A task-related notification lends its entity id as the task id when the
// metadata has none.
func ResolveNotification(n model.Notification) *Target {
	t := Resolve(enrich.Enrich(n).TaskDetails)
	if t == nil {
		return nil
	}
	if t.TaskID == 0 && n.RelatedEntityType == "TASK" {
		t.TaskID = n.RelatedEntityID
	}
	return t
}

// Level names a step of the hierarchy.
type Level string

const (
	LevelWorkspace Level = "workspace"
	LevelBoard     Level = "board"
)

// NotFoundError reports a navigation step that matched nothing.
type NotFoundError struct {
	Level Level
	Name  string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s not specified", e.Level)
	}
	return fmt.Sprintf("%s %q not found", e.Level, e.Name)
}

// Plan is what a hierarchy view does to land on a target: open the
// workspace, open the board, expand every group, wait SettleDelay, then
// show only the rows Filter matches.
type Plan struct {
	WorkspaceID int64
	BoardID     int64
	ExpandAll   bool
	SettleDelay time.Duration
	Filter      Filter
}

// NewPlan matches target against workspaces, each with its boards loaded.
// Ids win over names; among names the first exact match wins.
func NewPlan(workspaces []model.Workspace, target *Target, settle time.Duration) (Plan, error) {
	if target == nil {
		return Plan{}, &NotFoundError{Level: LevelWorkspace}
	}
	if settle <= 0 {
		settle = DefaultSettleDelay
	}

	ws := findWorkspace(workspaces, target)
	if ws == nil {
		return Plan{}, &NotFoundError{Level: LevelWorkspace, Name: target.WorkspaceName}
	}
	board := findBoard(ws, target)
	if board == nil {
		return Plan{}, &NotFoundError{Level: LevelBoard, Name: target.BoardName}
	}

	return Plan{
		WorkspaceID: ws.ID,
		BoardID:     board.ID,
		ExpandAll:   true,
		SettleDelay: settle,
		Filter: Filter{
			TaskID:    target.TaskID,
			TaskName:  target.TaskName,
			GroupID:   target.GroupID,
			GroupName: target.GroupName,
		},
	}, nil
}

func findWorkspace(workspaces []model.Workspace, t *Target) *model.Workspace {
	if t.WorkspaceID != 0 {
		if ws := model.FindWorkspace(workspaces, t.WorkspaceID); ws != nil {
			return ws
		}
	}
	if t.WorkspaceName == "" {
		return nil
	}
	for i := range workspaces {
		if workspaces[i].Name == t.WorkspaceName {
			return &workspaces[i]
		}
	}
	return nil
}

func findBoard(ws *model.Workspace, t *Target) *model.Board {
	if t.BoardID != 0 {
		if b := ws.FindBoard(t.BoardID); b != nil {
			return b
		}
	}
	if t.BoardName == "" {
		return nil
	}
	for i := range ws.Boards {
		if ws.Boards[i].Name == t.BoardName {
			return &ws.Boards[i]
		}
	}
	return nil
}
