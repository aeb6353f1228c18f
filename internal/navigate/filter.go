package navigate

import "github.com/nhle/worknotify/internal/model"

// Filter selects the target row of an expanded board. An empty filter
// matches everything.
type Filter struct {
	TaskID    int64
	TaskName  string
	GroupID   int64
	GroupName string
}

// Empty reports whether f has no criteria.
func (f Filter) Empty() bool {
	return f.TaskID == 0 && f.TaskName == "" && f.GroupID == 0 && f.GroupName == ""
}

// Match reports whether task t in group g is the target. When the board
// holds a task with f.TaskID, only that task matches; idOnBoard says so.
func (f Filter) Match(g model.Group, t model.Task, idOnBoard bool) bool {
	if idOnBoard {
		return t.ID == f.TaskID
	}
	if f.TaskName != "" && t.Name != f.TaskName {
		return false
	}
	if f.TaskID != 0 && f.TaskName == "" {
		return false
	}
	return f.matchGroup(g)
}

func (f Filter) matchGroup(g model.Group) bool {
	if f.GroupID != 0 {
		return g.ID == f.GroupID
	}
	if f.GroupName != "" {
		return g.Name == f.GroupName
	}
	return true
}

// Apply returns the groups that still hold matching tasks, each trimmed to
// those tasks. The input is not modified.
func (f Filter) Apply(groups []model.Group) []model.Group {
	if f.Empty() {
		return groups
	}
	idOnBoard := f.TaskID != 0 && hasTask(groups, f.TaskID)
	var out []model.Group
	for _, g := range groups {
		var tasks []model.Task
		for _, t := range g.Tasks {
			if f.Match(g, t, idOnBoard) {
				tasks = append(tasks, t)
			}
		}
		if len(tasks) == 0 {
			continue
		}
		g.Tasks = tasks
		out = append(out, g)
	}
	return out
}

func hasTask(groups []model.Group, id int64) bool {
	for _, g := range groups {
		for _, t := range g.Tasks {
			if t.ID == id {
				return true
			}
		}
	}
	return false
}
