package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/theme"
)

// Item wraps a notification so it can be used in a bubbles/list.
type Item struct {
	N model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.N.Title + " " + i.N.Message }

// Delegate renders a notification as three lines: title, message, and a
// meta line with location, due date and age.
type Delegate struct {
	renderer *enrich.Renderer
	now      func() time.Time
}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 3 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 1 }

// Update handles per-item messages (unused).
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single notification.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.N
	width := m.Width() - 4
	if width < 10 {
		width = 10
	}

	mark := " "
	if !n.IsRead {
		mark = theme.UnreadMarkStyle.Render("●")
	}
	title := n.Title
	if title == "" {
		title = string(n.Type)
	}
	head := fmt.Sprintf("%s %s %s", mark, enrich.Icon(n.Type), theme.TypeStyle(n.Type).Render(title))

	body := truncate(d.renderer.Render(n), width)
	meta := d.meta(n)

	lines := []string{head, "  " + body, "  " + theme.DimmedStyle.Render(truncate(meta, width))}
	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	} else if n.IsRead {
		lines[1] = "  " + theme.DimmedStyle.Render(body)
	}
	fmt.Fprint(w, style.Render(strings.Join(lines, "\n")))
}

func (d Delegate) meta(n model.Notification) string {
	var parts []string
	if loc := enrich.Location(n.TaskDetails); loc != "" {
		parts = append(parts, "📍 "+loc)
	}
	if n.TaskDetails != nil && n.TaskDetails.DueDate != "" {
		parts = append(parts, "📅 "+d.renderer.FormatDate(n.TaskDetails.DueDate))
	}
	parts = append(parts, d.renderer.TimeAgo(n.CreatedAt, d.now()))
	return strings.Join(parts, "  ·  ")
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
