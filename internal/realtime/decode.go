package realtime

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/nhle/worknotify/internal/model"
)

// DecodeNotification decodes the body of a notification push frame.
func DecodeNotification(body []byte) (model.Notification, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return model.Notification{}, fmt.Errorf("notification frame is not a JSON object")
	}
	var n model.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return model.Notification{}, fmt.Errorf("decoding notification frame: %w", err)
	}
	return n, nil
}

// DecodeUnreadCount decodes an unread-count frame. The server sends either
// a bare integer or {"count": n}; both are accepted.
func DecodeUnreadCount(body []byte) (int, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return 0, fmt.Errorf("empty unread-count frame")
	}

	var n int
	switch body[0] {
	case '{':
		var wrapped struct {
			Count *int `json:"count"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return 0, fmt.Errorf("decoding unread-count frame: %w", err)
		}
		if wrapped.Count == nil {
			return 0, fmt.Errorf("unread-count frame has no count field")
		}
		n = *wrapped.Count
	case '"':
		s, err := strconv.Unquote(string(body))
		if err != nil {
			return 0, fmt.Errorf("decoding unread-count frame: %w", err)
		}
		if n, err = strconv.Atoi(s); err != nil {
			return 0, fmt.Errorf("decoding unread-count frame: %w", err)
		}
	default:
		var err error
		if n, err = strconv.Atoi(string(body)); err != nil {
			return 0, fmt.Errorf("decoding unread-count frame: %w", err)
		}
	}

	if n < 0 {
		return 0, fmt.Errorf("negative unread count %d", n)
	}
	return n, nil
}
