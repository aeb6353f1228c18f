package enrich

import (
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/nhle/worknotify/internal/model"
)

type dateFormat struct {
	layout string
	clock  string
}

func (f dateFormat) format(t time.Time) string {
	return t.Format(f.layout)
}

var (
	dateTags = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.Vietnamese,
	}
	dateMatcher = language.NewMatcher(dateTags)
	dateFormats = []dateFormat{
		{layout: "1/2/2006", clock: "3:04 PM"},
		{layout: "02/01/2006", clock: "15:04"},
		{layout: "2/1/2006", clock: "15:04"},
	}
)

func matchDateFormat(t language.Tag) dateFormat {
	_, idx, _ := dateMatcher.Match(t)
	return dateFormats[idx]
}

// TimeAgo returns a short relative description of t as seen at now.
func (r *Renderer) TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	vi := r.tag == language.Vietnamese

	switch {
	case d < time.Minute:
		if vi {
			return "Vừa xong"
		}
		return "just now"
	case d < time.Hour:
		if vi {
			return fmt.Sprintf("%d phút trước", int(d.Minutes()))
		}
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		if vi {
			return fmt.Sprintf("%d giờ trước", int(d.Hours()))
		}
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		if vi {
			return fmt.Sprintf("%d ngày trước", int(d.Hours()/24))
		}
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return r.dates.format(t)
	}
}

// Location renders the "workspace → board → group" trail for d, or "" when
// d carries no workspace.
func Location(d *model.TaskDetails) string {
	if d == nil || d.WorkspaceName == "" {
		return ""
	}
	out := d.WorkspaceName
	if d.BoardName != "" {
		out += " → " + d.BoardName
	}
	if d.GroupName != "" {
		out += " → " + d.GroupName
	}
	return out
}

// Icon returns the glyph shown next to a notification of type t.
func Icon(t model.NotificationType) string {
	switch t {
	case model.TypeTaskAssigned:
		return "📋"
	case model.TypeTaskUpdated:
		return "✏️"
	case model.TypeTaskCompleted:
		return "✅"
	case model.TypeCommentAdded:
		return "💬"
	case model.TypeDeadlineWarning:
		return "⚠️"
	case model.TypeBoardCreated:
		return "📊"
	case model.TypeUserJoined:
		return "👋"
	default:
		return "🔔"
	}
}
