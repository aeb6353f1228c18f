// Package testutil provides an in-process fake of the work-management
// backend: the REST endpoints the client consumes and a minimal STOMP
// broker over WebSocket.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"github.com/nhle/worknotify/internal/model"
)

// Backend is a fake REST + STOMP server. All methods are safe for
// concurrent use.
type Backend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	notifications map[int64][]model.Notification
	workspaces    []model.Workspace
	failures      map[string]int
	calls         []string
	conns         map[*stompConn]struct{}
	connects      int
	rejectConnect string
	heartBeat     string
	nextMessageID int
}

type stompConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]string // destination -> subscription id
}

// NewBackend starts a Backend that is shut down when the test ends.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		notifications: make(map[int64][]model.Notification),
		failures:      make(map[string]int),
		conns:         make(map[*stompConn]struct{}),
		heartBeat:     "0,0",
	}

	r := gin.New()
	r.Use(b.record, b.inject)

	api := r.Group("/api")
	api.GET("/notifications/user/:userId/unread", b.getUnread)
	api.GET("/notifications/user/:userId/unread-count", b.getUnreadCount)
	api.PUT("/notifications/*path", b.putNotification)
	api.DELETE("/notifications/user/:userId", b.deleteAll)
	api.POST("/notifications/test", b.postTest)
	api.GET("/workspaces", b.getWorkspaces)
	api.GET("/boards/workspace/:id", b.getBoards)
	api.GET("/groups/board/:id", b.getGroups)
	api.GET("/tasks/group/:id", b.getTasks)
	r.GET("/ws", b.serveWS)

	b.server = httptest.NewServer(r)
	t.Cleanup(func() {
		b.DropConnections()
		b.server.Close()
	})
	return b
}

// APIURL returns the REST base URL, ending in /api.
func (b *Backend) APIURL() string {
	return b.server.URL + "/api"
}

// WSURL returns the STOMP WebSocket endpoint.
func (b *Backend) WSURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

// SetUnread replaces the stored notifications of a user.
func (b *Backend) SetUnread(userID int64, items []model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications[userID] = append([]model.Notification(nil), items...)
}

// Notifications returns the stored notifications of a user.
func (b *Backend) Notifications(userID int64) []model.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Notification(nil), b.notifications[userID]...)
}

// SetHierarchy replaces the workspace tree. Boards, groups and tasks are
// served from the nested slices.
func (b *Backend) SetHierarchy(workspaces []model.Workspace) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workspaces = workspaces
}

// FailWith makes requests whose "METHOD path" starts with prefix answer
// with status. A zero status clears the failure.
func (b *Backend) FailWith(prefix string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, prefix)
		return
	}
	b.failures[prefix] = status
}

// Calls returns every request seen, as "METHOD /path?query".
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// HasCall reports whether a request starting with prefix was seen.
func (b *Backend) HasCall(prefix string) bool {
	for _, c := range b.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// RejectConnect makes the broker answer CONNECT with an ERROR frame
// carrying msg. An empty msg accepts connections again.
func (b *Backend) RejectConnect(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectConnect = msg
}

// SetHeartBeat sets the heart-beat header the broker answers CONNECT with.
func (b *Backend) SetHeartBeat(h string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heartBeat = h
}

// Connects returns how many STOMP sessions were accepted so far.
func (b *Backend) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Subscribed reports whether some live connection subscribed to dest.
func (b *Backend) Subscribed(dest string) bool {
	b.mu.Lock()
	conns := make([]*stompConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		_, ok := c.subs[dest]
		c.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

// WaitSubscribed fails the test unless dest is subscribed within timeout.
func (b *Backend) WaitSubscribed(t *testing.T, dest string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.Subscribed(dest) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no subscription to %s within %s", dest, timeout)
}

// Push sends a MESSAGE frame with body to every connection subscribed to
// dest and returns how many received it.
func (b *Backend) Push(dest, body string) int {
	b.mu.Lock()
	conns := make([]*stompConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	sent := 0
	for _, c := range conns {
		c.mu.Lock()
		subID, ok := c.subs[dest]
		c.mu.Unlock()
		if !ok {
			continue
		}
		b.mu.Lock()
		b.nextMessageID++
		id := b.nextMessageID
		b.mu.Unlock()

		msg := frame.New("MESSAGE",
			"destination", dest,
			"subscription", subID,
			"message-id", strconv.Itoa(id),
			"content-type", "application/json",
			"content-length", strconv.Itoa(len(body)),
		)
		msg.Body = []byte(body)
		if c.write(encode(msg)) == nil {
			sent++
		}
	}
	return sent
}

// PushRaw writes data verbatim to every live connection.
func (b *Backend) PushRaw(data string) {
	b.mu.Lock()
	conns := make([]*stompConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()
	for _, c := range conns {
		_ = c.write(data)
	}
}

// DropConnections closes every live WebSocket without a STOMP goodbye.
func (b *Backend) DropConnections() {
	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[*stompConn]struct{})
	b.mu.Unlock()
	for c := range conns {
		_ = c.ws.Close()
	}
}

func (c *stompConn) write(data string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(data))
}

func (b *Backend) record(c *gin.Context) {
	call := c.Request.Method + " " + c.Request.URL.Path
	if q := c.Request.URL.RawQuery; q != "" {
		call += "?" + q
	}
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
	c.Next()
}

func (b *Backend) inject(c *gin.Context) {
	call := c.Request.Method + " " + c.Request.URL.Path
	b.mu.Lock()
	status := 0
	for prefix, s := range b.failures {
		if strings.HasPrefix(call, prefix) {
			status = s
			break
		}
	}
	b.mu.Unlock()
	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.Next()
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad " + name})
		return 0, false
	}
	return id, true
}

func (b *Backend) unreadOf(userID int64) []model.Notification {
	out := []model.Notification{}
	for _, n := range b.notifications[userID] {
		if !n.IsRead {
			out = append(out, n)
		}
	}
	return out
}

func (b *Backend) getUnread(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	b.mu.Lock()
	out := b.unreadOf(userID)
	b.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (b *Backend) getUnreadCount(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	b.mu.Lock()
	n := len(b.unreadOf(userID))
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// putNotification serves both PUT /notifications/{id}/read?userId= and
// PUT /notifications/user/{userId}/mark-all-read.
func (b *Backend) putNotification(c *gin.Context) {
	parts := strings.Split(strings.Trim(c.Param("path"), "/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "read":
		id, err1 := strconv.ParseInt(parts[0], 10, 64)
		userID, err2 := strconv.ParseInt(c.Query("userId"), 10, 64)
		if err1 != nil || err2 != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad id"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		items := b.notifications[userID]
		for i := range items {
			if items[i].ID == id {
				items[i].IsRead = true
				c.Status(http.StatusOK)
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "notification not found"})

	case len(parts) == 3 && parts[0] == "user" && parts[2] == "mark-all-read":
		userID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad userId"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		updated := 0
		items := b.notifications[userID]
		for i := range items {
			if !items[i].IsRead {
				items[i].IsRead = true
				updated++
			}
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})

	default:
		c.AbortWithStatus(http.StatusNotFound)
	}
}

func (b *Backend) deleteAll(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	b.mu.Lock()
	deleted := len(b.notifications[userID])
	delete(b.notifications, userID)
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type testRequest struct {
	UserID   int64                  `json:"userId"`
	Type     model.NotificationType `json:"type"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Metadata string                 `json:"metadata"`
}

// postTest stores the notification and pushes it to the user's topic, the
// way the real debug endpoint does.
func (b *Backend) postTest(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b.mu.Lock()
	id := int64(1)
	for _, items := range b.notifications {
		for _, n := range items {
			if n.ID >= id {
				id = n.ID + 1
			}
		}
	}
	n := model.Notification{
		ID:        id,
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Metadata:  req.Metadata,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	b.notifications[req.UserID] = append(b.notifications[req.UserID], n)
	b.mu.Unlock()

	c.JSON(http.StatusCreated, n)
	if body, err := jsonString(n); err == nil {
		b.Push(fmt.Sprintf("/topic/notifications/%d", req.UserID), body)
	}
}

func (b *Backend) getWorkspaces(c *gin.Context) {
	b.mu.Lock()
	out := make([]model.Workspace, 0, len(b.workspaces))
	for _, ws := range b.workspaces {
		out = append(out, model.Workspace{ID: ws.ID, Name: ws.Name, Description: ws.Description})
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (b *Backend) getBoards(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Board{}
	for _, ws := range b.workspaces {
		if ws.ID != id {
			continue
		}
		for _, bd := range ws.Boards {
			out = append(out, model.Board{ID: bd.ID, Name: bd.Name, WorkspaceID: ws.ID})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (b *Backend) getGroups(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Group{}
	for _, ws := range b.workspaces {
		for _, bd := range ws.Boards {
			if bd.ID != id {
				continue
			}
			for _, g := range bd.Groups {
				out = append(out, model.Group{ID: g.ID, Name: g.Name, BoardID: bd.ID})
			}
		}
	}
	c.JSON(http.StatusOK, out)
}

func (b *Backend) getTasks(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Task{}
	for _, ws := range b.workspaces {
		for _, bd := range ws.Boards {
			for _, g := range bd.Groups {
				if g.ID == id {
					out = append(out, g.Tasks...)
				}
			}
		}
	}
	c.JSON(http.StatusOK, out)
}
