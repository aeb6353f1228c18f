// Package enrich turns raw notification payloads into display-ready data:
// structured task context parsed from metadata, and locale-aware message
// text rendered from it.
package enrich

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nhle/worknotify/internal/model"
)

// ParseMetadata decodes a metadata blob into TaskDetails. It returns nil
// when raw is empty, is not valid JSON, or is not a JSON object.
func ParseMetadata(raw string) *model.TaskDetails {
	b := bytes.TrimSpace([]byte(raw))
	if len(b) == 0 || b[0] != '{' {
		return nil
	}

	var d model.TaskDetails
	if err := json.Unmarshal(b, &d); err != nil {
		return nil
	}
	d.DueDate = strings.TrimSpace(d.DueDate)
	return &d
}

// Enrich fills n.TaskDetails from n.Metadata when it has not been set yet.
// Parse failures leave TaskDetails nil; the raw message is used instead.
func Enrich(n model.Notification) model.Notification {
	if n.TaskDetails == nil && n.Metadata != "" {
		n.TaskDetails = ParseMetadata(n.Metadata)
	}
	return n
}

// EnrichAll applies Enrich to every element and returns a new slice.
func EnrichAll(items []model.Notification) []model.Notification {
	out := make([]model.Notification, len(items))
	for i, n := range items {
		out[i] = Enrich(n)
	}
	return out
}

// EncodeMetadata is the inverse of ParseMetadata.
func EncodeMetadata(d *model.TaskDetails) (string, error) {
	if d == nil {
		return "", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
