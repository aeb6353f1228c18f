package backlog

import (
	"time"

	"github.com/nhle/worknotify/internal/model"
)

// Samples returns the built-in offline set: three representative
// notifications, the last one already read, timed relative to now.
func Samples(now time.Time) []model.Notification {
	assigned := `{"taskId":1000,"taskName":"Fix login","workspaceId":1,"workspaceName":"Main",` +
		`"boardId":10,"boardName":"Sprint","groupId":100,"groupName":"To-Do",` +
		`"dueDate":"` + now.AddDate(0, 0, 3).Format("2006-01-02") + `","assignedBy":"John"}`

	return []model.Notification{
		{
			ID:                1,
			Type:              model.TypeTaskAssigned,
			Title:             "New task assigned",
			Message:           `John assigned you to "Fix login"`,
			Metadata:          assigned,
			CreatedAt:         now.Add(-5 * time.Minute),
			RelatedEntityType: "TASK",
			RelatedEntityID:   123,
		},
		{
			ID:                2,
			Type:              model.TypeCommentAdded,
			Title:             "New comment",
			Message:           `Sarah commented on "Update documentation"`,
			CreatedAt:         now.Add(-15 * time.Minute),
			RelatedEntityType: "TASK",
			RelatedEntityID:   124,
		},
		{
			ID:                3,
			Type:              model.TypeDeadlineWarning,
			Title:             "Deadline approaching",
			Message:           `Task "Deploy to production" is due in 2 hours`,
			IsRead:            true,
			CreatedAt:         now.Add(-time.Hour),
			RelatedEntityType: "TASK",
			RelatedEntityID:   125,
		},
	}
}

// Random returns one sample, unread and without an id, suitable for a
// local debug insertion.
func Random(now time.Time, pick int) model.Notification {
	samples := Samples(now)
	n := samples[pick%len(samples)]
	n.ID = 0
	n.IsRead = false
	n.CreatedAt = time.Time{}
	return n
}
