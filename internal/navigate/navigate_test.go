package navigate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/testutil"
)

func taskIDs(groups []model.Group) []int64 {
	var ids []int64
	for _, g := range groups {
		for _, t := range g.Tasks {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func TestResolve(t *testing.T) {
	assert.Nil(t, Resolve(nil))

	got := Resolve(&model.TaskDetails{
		TaskID: 5, TaskName: "Fix login", WorkspaceName: "Main", BoardName: "Sprint", GroupName: "To-Do",
		WorkspaceID: testutil.Int64(1), BoardID: testutil.Int64(10),
	})
	require.NotNil(t, got)
	assert.Equal(t, Target{
		WorkspaceID: 1, BoardID: 10, TaskID: 5,
		WorkspaceName: "Main", BoardName: "Sprint", GroupName: "To-Do", TaskName: "Fix login",
	}, *got)
}

func TestResolveNotification(t *testing.T) {
	n := model.Notification{
		Metadata:          `{"taskName":"Fix login","workspaceName":"Main","boardName":"Sprint"}`,
		RelatedEntityType: "TASK",
		RelatedEntityID:   1000,
	}
	got := ResolveNotification(n)
	require.NotNil(t, got)
	assert.Equal(t, int64(1000), got.TaskID)
	assert.Equal(t, "Main", got.WorkspaceName)

	assert.Nil(t, ResolveNotification(model.Notification{Message: "no context"}))
	assert.Nil(t, ResolveNotification(model.Notification{Metadata: "not json"}))
}

func TestPlanByNames(t *testing.T) {
	tree := testutil.Hierarchy()
	plan, err := NewPlan(tree, &Target{
		WorkspaceName: "Side", BoardName: "Sprint", GroupName: "To-Do", TaskName: "Fix login",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), plan.WorkspaceID)
	assert.Equal(t, int64(20), plan.BoardID)
	assert.True(t, plan.ExpandAll)
	assert.Equal(t, DefaultSettleDelay, plan.SettleDelay)
}

func TestPlanPrefersIDs(t *testing.T) {
	tree := testutil.Hierarchy()
	// Names point at workspace 1; ids point at workspace 2.
	plan, err := NewPlan(tree, &Target{
		WorkspaceID: 2, BoardID: 20, WorkspaceName: "Main", BoardName: "Sprint",
	}, 250*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(20), plan.BoardID)
	assert.Equal(t, 250*time.Millisecond, plan.SettleDelay)

	// Stale ids fall back to names.
	plan, err = NewPlan(tree, &Target{
		WorkspaceID: 99, BoardID: 99, WorkspaceName: "Main", BoardName: "Backlog",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11), plan.BoardID)
}

func TestPlanDuplicateNameTakesFirst(t *testing.T) {
	plan, err := NewPlan(testutil.Hierarchy(), &Target{WorkspaceName: "Main", BoardName: "Sprint"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), plan.BoardID)
}

func TestPlanNotFound(t *testing.T) {
	tree := testutil.Hierarchy()

	_, err := NewPlan(tree, &Target{WorkspaceName: "Gone", BoardName: "Sprint"}, 0)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, LevelWorkspace, nf.Level)
	assert.Equal(t, `workspace "Gone" not found`, err.Error())

	_, err = NewPlan(tree, &Target{WorkspaceName: "Main", BoardName: "Roadmap"}, 0)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, LevelBoard, nf.Level)
	assert.Equal(t, "Roadmap", nf.Name)

	_, err = NewPlan(tree, nil, 0)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "workspace not specified", err.Error())
}

func TestFilterShowsExactlyTheTarget(t *testing.T) {
	groups := testutil.Hierarchy()[0].Boards[0].Groups

	byName := Filter{TaskName: "Fix login", GroupName: "To-Do"}
	assert.Equal(t, []int64{1000}, taskIDs(byName.Apply(groups)))

	byID := Filter{TaskID: 1002, TaskName: "Fix login", GroupName: "To-Do"}
	assert.Equal(t, []int64{1002}, taskIDs(byID.Apply(groups)))

	staleID := Filter{TaskID: 77, TaskName: "Fix login", GroupName: "Done"}
	assert.Equal(t, []int64{1002}, taskIDs(staleID.Apply(groups)))

	idOnlyMissing := Filter{TaskID: 77}
	assert.Empty(t, idOnlyMissing.Apply(groups))

	groupOnly := Filter{GroupName: "To-Do"}
	assert.Equal(t, []int64{1000, 1001}, taskIDs(groupOnly.Apply(groups)))

	assert.Equal(t, []int64{1000, 1001, 1002}, taskIDs(Filter{}.Apply(groups)))
	assert.Len(t, groups[0].Tasks, 2, "input must not be modified")
}

func TestFilterTaskIDWinsOverSharedName(t *testing.T) {
	groups := []model.Group{{
		ID:   1,
		Name: "G",
		Tasks: []model.Task{
			{ID: 5, Name: "Fix bug"},
			{ID: 9, Name: "Fix bug"},
		},
	}}

	f := Filter{TaskID: 5, TaskName: "Fix bug", GroupName: "G"}
	assert.Equal(t, []int64{5}, taskIDs(f.Apply(groups)))

	// An id the board does not hold falls back to name and group.
	stale := Filter{TaskID: 77, TaskName: "Fix bug", GroupName: "G"}
	assert.Equal(t, []int64{5, 9}, taskIDs(stale.Apply(groups)))
}
