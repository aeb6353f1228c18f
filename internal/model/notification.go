package model

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// NotificationType identifies the kind of activity a notification reports.
// Values the client does not recognize are preserved verbatim.
type NotificationType string

const (
	TypeTaskAssigned    NotificationType = "TASK_ASSIGNED"
	TypeTaskUpdated     NotificationType = "TASK_UPDATED"
	TypeTaskCompleted   NotificationType = "TASK_COMPLETED"
	TypeCommentAdded    NotificationType = "COMMENT_ADDED"
	TypeDeadlineWarning NotificationType = "DEADLINE_WARNING"
	TypeBoardCreated    NotificationType = "BOARD_CREATED"
	TypeUserJoined      NotificationType = "USER_JOINED"
)

// Known reports whether t is one of the types the client renders specially.
func (t NotificationType) Known() bool {
	switch t {
	case TypeTaskAssigned, TypeTaskUpdated, TypeTaskCompleted,
		TypeCommentAdded, TypeDeadlineWarning, TypeBoardCreated, TypeUserJoined:
		return true
	}
	return false
}

// TaskDetails is the structured context parsed out of a notification's
// metadata. Names are always carried; ids are carried when the backend
// includes them and are preferred for navigation.
type TaskDetails struct {
	TaskID        int64  `json:"taskId,omitempty"`
	TaskName      string `json:"taskName,omitempty"`
	WorkspaceName string `json:"workspaceName,omitempty"`
	BoardName     string `json:"boardName,omitempty"`
	GroupName     string `json:"groupName,omitempty"`
	DueDate       string `json:"dueDate,omitempty"`
	AssignedBy    string `json:"assignedBy,omitempty"`
	UpdatedBy     string `json:"updatedBy,omitempty"`

	WorkspaceID *int64 `json:"workspaceId,omitempty"`
	BoardID     *int64 `json:"boardId,omitempty"`
	GroupID     *int64 `json:"groupId,omitempty"`
}

// Notification is a single entry in a user's notification feed.
type Notification struct {
	// ID is the server id, or a client-assigned placeholder when Temporary.
	ID int64 `json:"id"`

	// UserID is the recipient.
	UserID int64 `json:"userId,omitempty"`

	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`

	// Metadata is the raw JSON blob the backend attaches. When non-empty it
	// should decode into TaskDetails.
	Metadata string `json:"metadata,omitempty"`

	// TaskDetails is derived from Metadata and never sent over the wire.
	TaskDetails *TaskDetails `json:"-"`

	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`

	RelatedEntityType string `json:"relatedEntityType,omitempty"`
	RelatedEntityID   int64  `json:"relatedEntityId,omitempty"`
	RelatedEntityName string `json:"relatedEntityName,omitempty"`

	CreatedByID   int64  `json:"createdById,omitempty"`
	CreatedByName string `json:"createdByName,omitempty"`

	// Temporary marks entries inserted locally before the server knows them.
	Temporary bool `json:"-"`
}

// notificationWire mirrors the backend DTO, with the loosely typed fields
// left raw so UnmarshalJSON can accept every shape the backend emits.
type notificationWire struct {
	ID                int64            `json:"id"`
	UserID            int64            `json:"userId"`
	Type              NotificationType `json:"type"`
	Title             string           `json:"title"`
	Message           string           `json:"message"`
	Metadata          json.RawMessage  `json:"metadata"`
	IsRead            *bool            `json:"isRead"`
	Read              *bool            `json:"read"`
	CreatedAt         json.RawMessage  `json:"createdAt"`
	RelatedEntityType string           `json:"relatedEntityType"`
	RelatedEntityID   int64            `json:"relatedEntityId"`
	RelatedEntityName string           `json:"relatedEntityName"`
	CreatedByID       int64            `json:"createdById"`
	CreatedByName     string           `json:"createdByName"`
}

// UnmarshalJSON decodes a backend notification. createdAt may be an ISO
// local date-time, RFC 3339, epoch milliseconds or a [y,m,d,h,mi,s,ns]
// array; metadata may be a JSON string or an inline object.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w notificationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	createdAt, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("decoding createdAt: %w", err)
	}

	*n = Notification{
		ID:                w.ID,
		UserID:            w.UserID,
		Type:              w.Type,
		Title:             w.Title,
		Message:           w.Message,
		Metadata:          rawMetadata(w.Metadata),
		CreatedAt:         createdAt,
		RelatedEntityType: w.RelatedEntityType,
		RelatedEntityID:   w.RelatedEntityID,
		RelatedEntityName: w.RelatedEntityName,
		CreatedByID:       w.CreatedByID,
		CreatedByName:     w.CreatedByName,
	}
	switch {
	case w.IsRead != nil:
		n.IsRead = *w.IsRead
	case w.Read != nil:
		n.IsRead = *w.Read
	}
	return nil
}

func rawMetadata(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

var localLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		return ParseTime(s)
	case '[':
		var parts []int
		if err := json.Unmarshal(raw, &parts); err != nil {
			return time.Time{}, err
		}
		if len(parts) < 3 {
			return time.Time{}, fmt.Errorf("date array too short: %s", raw)
		}
		for len(parts) < 7 {
			parts = append(parts, 0)
		}
		return time.Date(parts[0], time.Month(parts[1]), parts[2],
			parts[3], parts[4], parts[5], parts[6], time.Local), nil
	default:
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("unsupported timestamp %s", raw)
		}
		return time.UnixMilli(ms), nil
	}
}

// ParseTime parses the date and date-time strings the backend produces.
// Values without a zone are interpreted in local time.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
