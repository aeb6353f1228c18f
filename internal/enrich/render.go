package enrich

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/nhle/worknotify/internal/model"
)

// Message keys. Every template takes the same argument list, in this order:
// task name, due date, actor, workspace, board, group.
const (
	keyTaskAssigned    = "task.assigned"
	keyTaskUpdated     = "task.updated"
	keyTaskCompleted   = "task.completed"
	keyCommentAdded    = "comment.added"
	keyDeadlineWarning = "deadline.warning"
	keyBoardCreated    = "board.created"
	keyUserJoined      = "user.joined"

	keyDueUnset    = "due.unset"
	keyDueSoon     = "due.soon"
	keyDefaultUser = "actor.default"
	keySomeone     = "actor.someone"
)

var templateKeys = map[model.NotificationType]string{
	model.TypeTaskAssigned:    keyTaskAssigned,
	model.TypeTaskUpdated:     keyTaskUpdated,
	model.TypeTaskCompleted:   keyTaskCompleted,
	model.TypeCommentAdded:    keyCommentAdded,
	model.TypeDeadlineWarning: keyDeadlineWarning,
	model.TypeBoardCreated:    keyBoardCreated,
	model.TypeUserJoined:      keyUserJoined,
}

const location = ` in workspace "%[4]s" → board "%[5]s" → group "%[6]s"`
const locationVI = ` trong workspace "%[4]s" > board "%[5]s" > group "%[6]s"`

var english = map[string]string{
	keyTaskAssigned:    `You were just assigned task "%[1]s" (due: %[2]s) by %[3]s` + location,
	keyTaskUpdated:     `Task "%[1]s" was updated by %[3]s` + location,
	keyTaskCompleted:   `Task "%[1]s" was completed` + location,
	keyCommentAdded:    `%[3]s commented on task "%[1]s"` + location,
	keyDeadlineWarning: `Task "%[1]s" is due (%[2]s)` + location,
	keyBoardCreated:    `Board "%[5]s" was created in workspace "%[4]s"`,
	keyUserJoined:      `%[3]s joined workspace "%[4]s"`,
	keyDueUnset:        "not set",
	keyDueSoon:         "soon",
	keyDefaultUser:     "Admin",
	keySomeone:         "Someone",
}

var vietnamese = map[string]string{
	keyTaskAssigned:    `Bạn vừa được %[3]s giao task "%[1]s" (hạn: %[2]s)` + locationVI,
	keyTaskUpdated:     `Task "%[1]s" đã được %[3]s cập nhật` + locationVI,
	keyTaskCompleted:   `Task "%[1]s" đã được hoàn thành` + locationVI,
	keyCommentAdded:    `%[3]s đã bình luận về task "%[1]s"` + locationVI,
	keyDeadlineWarning: `Task "%[1]s" sẽ đến hạn (%[2]s)` + locationVI,
	keyBoardCreated:    `Board "%[5]s" đã được tạo trong workspace "%[4]s"`,
	keyUserJoined:      `%[3]s đã tham gia workspace "%[4]s"`,
	keyDueUnset:        "chưa xác định",
	keyDueSoon:         "sớm",
	keyDefaultUser:     "Admin",
	keySomeone:         "Một thành viên",
}

var defaultCatalog = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msg := range english {
		_ = b.SetString(language.English, key, msg)
	}
	for key, msg := range vietnamese {
		_ = b.SetString(language.Vietnamese, key, msg)
	}
	return b
}

var (
	messageTags    = []language.Tag{language.English, language.Vietnamese}
	messageMatcher = language.NewMatcher(messageTags)
)

// Renderer produces message text and dates in one locale. The zero value
// is not usable; construct one with NewRenderer.
type Renderer struct {
	tag     language.Tag
	printer *message.Printer
	dates   dateFormat
}

// NewRenderer returns a Renderer for a BCP 47 locale such as "vi-VN".
// Unsupported or malformed locales fall back to English.
func NewRenderer(locale string) *Renderer {
	requested, err := language.Parse(locale)
	if err != nil {
		requested = language.English
	}
	_, idx, _ := messageMatcher.Match(requested)
	tag := messageTags[idx]

	return &Renderer{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(defaultCatalog)),
		dates:   matchDateFormat(requested),
	}
}

// Language returns the matched message language.
func (r *Renderer) Language() language.Tag {
	return r.tag
}

// RenderMessage renders the template for t with details. It reports false
// when t has no template or details is nil.
func (r *Renderer) RenderMessage(t model.NotificationType, d *model.TaskDetails) (string, bool) {
	key, ok := templateKeys[t]
	if !ok || d == nil {
		return "", false
	}

	actor := d.AssignedBy
	if t != model.TypeTaskAssigned && d.UpdatedBy != "" {
		actor = d.UpdatedBy
	}
	if actor == "" {
		switch t {
		case model.TypeTaskAssigned, model.TypeTaskUpdated:
			actor = r.printer.Sprintf(keyDefaultUser)
		default:
			actor = r.printer.Sprintf(keySomeone)
		}
	}

	due := r.FormatDate(d.DueDate)
	if due == "" {
		if t == model.TypeDeadlineWarning {
			due = r.printer.Sprintf(keyDueSoon)
		} else {
			due = r.printer.Sprintf(keyDueUnset)
		}
	}

	return r.printer.Sprintf(key,
		d.TaskName, due, actor, d.WorkspaceName, d.BoardName, d.GroupName), true
}

// Render returns the text to display for n: the rendered template when the
// type is recognized and task details are present, otherwise the raw message.
func (r *Renderer) Render(n model.Notification) string {
	d := n.TaskDetails
	if d == nil && n.Metadata != "" {
		d = ParseMetadata(n.Metadata)
	}
	if text, ok := r.RenderMessage(n.Type, d); ok {
		return text
	}
	return n.Message
}

// FormatDate renders a backend date string in the renderer's locale.
// Unparseable input is returned unchanged; empty input yields "".
func (r *Renderer) FormatDate(raw string) string {
	if raw == "" {
		return ""
	}
	t, err := model.ParseTime(raw)
	if err != nil {
		return raw
	}
	return r.dates.format(t)
}

// FormatTime renders a timestamp with date and clock time.
func (r *Renderer) FormatTime(t time.Time) string {
	return r.dates.format(t) + " " + t.Format(r.dates.clock)
}
