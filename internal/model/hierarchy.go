package model

// Workspace is the top level of the work hierarchy.
type Workspace struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Boards      []Board `json:"boards,omitempty"`
}

// Board belongs to a workspace and holds groups.
type Board struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	WorkspaceID int64   `json:"workspaceId,omitempty"`
	Groups      []Group `json:"groups,omitempty"`
}

// Group is a named bucket of tasks on a board.
type Group struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	BoardID int64  `json:"boardId,omitempty"`
	Tasks   []Task `json:"tasks,omitempty"`
}

// Task is a single work item.
type Task struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
	DueDate  string `json:"dueDate,omitempty"`
	GroupID  int64  `json:"groupId,omitempty"`
}

// FindWorkspace returns the workspace with the given id, or nil.
func FindWorkspace(workspaces []Workspace, id int64) *Workspace {
	for i := range workspaces {
		if workspaces[i].ID == id {
			return &workspaces[i]
		}
	}
	return nil
}

// FindBoard returns the board with the given id in ws, or nil.
func (ws *Workspace) FindBoard(id int64) *Board {
	for i := range ws.Boards {
		if ws.Boards[i].ID == id {
			return &ws.Boards[i]
		}
	}
	return nil
}
