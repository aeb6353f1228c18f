// Package api is the client for the work-management REST service: the
// notification endpoints and the workspace hierarchy used for navigation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/nhle/worknotify/internal/model"
)

// Client talks to the REST service. Requests are not retried; callers
// decide what a failure means.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for baseURL (e.g. http://localhost:8080/api).
// An empty token sends no Authorization header.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if token != "" {
		r.SetAuthToken(token)
	}

	return &Client{http: r}
}

// do executes a request and decodes a JSON body into result when result is
// non-nil and the body is not empty.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	params map[string]string,
	query map[string]string,
	body interface{},
	result interface{},
) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetPathParams(params)
	}
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &StatusError{
			Method:     method,
			Path:       resp.Request.URL,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
	}

	if result == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
	}
	return nil
}

func userParam(userID int64) map[string]string {
	return map[string]string{"userId": strconv.FormatInt(userID, 10)}
}

// countResponse is the {"count": n} body of the unread-count endpoint.
type countResponse struct {
	Count int `json:"count"`
}

// UnreadNotifications fetches the user's unread backlog.
func (c *Client) UnreadNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	var out []model.Notification
	err := c.do(ctx, http.MethodGet, "/notifications/user/{userId}/unread", userParam(userID), nil, nil, &out)
	if err != nil {
		return nil, fmt.Errorf("fetching unread notifications for user %d: %w", userID, err)
	}
	return out, nil
}

// UnreadCount fetches the server's unread counter for the user.
func (c *Client) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var out countResponse
	err := c.do(ctx, http.MethodGet, "/notifications/user/{userId}/unread-count", userParam(userID), nil, nil, &out)
	if err != nil {
		return 0, fmt.Errorf("fetching unread count for user %d: %w", userID, err)
	}
	return out.Count, nil
}

// MarkRead marks one notification as read.
func (c *Client) MarkRead(ctx context.Context, userID, notificationID int64) error {
	params := map[string]string{"id": strconv.FormatInt(notificationID, 10)}
	query := map[string]string{"userId": strconv.FormatInt(userID, 10)}
	if err := c.do(ctx, http.MethodPut, "/notifications/{id}/read", params, query, nil, nil); err != nil {
		return fmt.Errorf("marking notification %d read: %w", notificationID, err)
	}
	return nil
}

// MarkAllRead marks every notification of the user as read.
func (c *Client) MarkAllRead(ctx context.Context, userID int64) error {
	if err := c.do(ctx, http.MethodPut, "/notifications/user/{userId}/mark-all-read", userParam(userID), nil, nil, nil); err != nil {
		return fmt.Errorf("marking all notifications read for user %d: %w", userID, err)
	}
	return nil
}

// DeleteAll removes every notification of the user.
func (c *Client) DeleteAll(ctx context.Context, userID int64) error {
	if err := c.do(ctx, http.MethodDelete, "/notifications/user/{userId}", userParam(userID), nil, nil, nil); err != nil {
		return fmt.Errorf("deleting notifications for user %d: %w", userID, err)
	}
	return nil
}

// TestRequest is the body of the debug send endpoint.
type TestRequest struct {
	UserID   int64                  `json:"userId"`
	Type     model.NotificationType `json:"type"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Metadata string                 `json:"metadata,omitempty"`
}

// SendTest asks the server to create and push a notification, which then
// arrives over the realtime channel.
func (c *Client) SendTest(ctx context.Context, in TestRequest) (*model.Notification, error) {
	var out model.Notification
	if err := c.do(ctx, http.MethodPost, "/notifications/test", nil, nil, in, &out); err != nil {
		return nil, fmt.Errorf("sending test notification: %w", err)
	}
	return &out, nil
}
