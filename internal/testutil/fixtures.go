package testutil

import "github.com/nhle/worknotify/internal/model"

// Hierarchy returns a small tree with a duplicated board name across
// workspaces, which name-only navigation cannot tell apart.
func Hierarchy() []model.Workspace {
	return []model.Workspace{
		{
			ID:   1,
			Name: "Main",
			Boards: []model.Board{
				{
					ID:   10,
					Name: "Sprint",
					Groups: []model.Group{
						{ID: 100, Name: "To-Do", Tasks: []model.Task{
							{ID: 1000, Name: "Fix login", Status: "TODO"},
							{ID: 1001, Name: "Write docs", Status: "TODO"},
						}},
						{ID: 101, Name: "Done", Tasks: []model.Task{
							{ID: 1002, Name: "Fix login", Status: "DONE"},
						}},
					},
				},
				{ID: 11, Name: "Backlog"},
			},
		},
		{
			ID:   2,
			Name: "Side",
			Boards: []model.Board{
				{
					ID:   20,
					Name: "Sprint",
					Groups: []model.Group{
						{ID: 200, Name: "To-Do", Tasks: []model.Task{
							{ID: 2000, Name: "Fix login", Status: "TODO"},
						}},
					},
				},
			},
		},
	}
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
