// Package realtime keeps a STOMP-over-WebSocket subscription to the
// per-user notification topics alive for the lifetime of a session.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/model"
)

// State is the connection state of a Channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateClosed is terminal and only reached through Close or context
	// cancellation.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second

	// maxBackoffShift caps the exponent used for capped exponential backoff.
	maxBackoffShift = 10
)

// Handler receives decoded events. Calls come from the channel's read
// goroutine, one at a time.
type Handler interface {
	HandleNotification(n model.Notification)
	HandleUnreadCount(count int)
}

// Config configures a Channel.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8080/ws.
	URL    string
	UserID int64

	// Token, when set, is sent as a bearer Authorization header on the
	// handshake and as a STOMP header on CONNECT.
	Token string

	// ReconnectDelay is the wait before each reconnect attempt.
	ReconnectDelay time.Duration

	// MaxReconnectDelay enables capped exponential backoff when larger
	// than ReconnectDelay. Zero keeps the delay fixed.
	MaxReconnectDelay time.Duration

	// Heartbeat is the outgoing heartbeat interval offered to the server.
	// Zero disables heartbeats in both directions.
	Heartbeat time.Duration

	// Destinations overrides DefaultDestinations.
	Destinations []string
}

// DefaultDestinations returns the per-user destinations the client
// subscribes to.
func DefaultDestinations(userID int64) []string {
	return []string{
		fmt.Sprintf("/topic/notifications/%d", userID),
		fmt.Sprintf("/topic/unread-count/%d", userID),
		"/user/queue/unread-count",
	}
}

type destKind int

const (
	destOther destKind = iota
	destNotifications
	destUnreadCount
)

func classify(destination string) destKind {
	switch {
	case strings.Contains(destination, "/unread-count"):
		return destUnreadCount
	case strings.Contains(destination, "/notifications"):
		return destNotifications
	default:
		return destOther
	}
}

// Channel owns one logical subscription. It never holds notification
// data; decoded events go to the Handler.
type Channel struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu        sync.Mutex
	state     State
	listeners []func(State)

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Channel. It does nothing until Run is called.
func New(cfg Config, h Handler, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if len(cfg.Destinations) == 0 {
		cfg.Destinations = DefaultDestinations(cfg.UserID)
	}
	return &Channel{
		cfg:     cfg,
		handler: h,
		logger:  logger.With(zap.String("component", "realtime"), zap.Int64("user_id", cfg.UserID)),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		done: make(chan struct{}),
	}
}

// OnStateChange registers fn to be called after every state transition.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Debug("realtime state", zap.Stringer("state", s))
	for _, fn := range listeners {
		fn(s)
	}
}

// Close stops the channel. Run returns shortly after.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Channel) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// backoff returns the delay before reconnect attempt n (zero based).
func (c *Channel) backoff(attempt int) time.Duration {
	delay := c.cfg.ReconnectDelay
	if c.cfg.MaxReconnectDelay <= delay {
		return delay
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	delay <<= uint(attempt)
	if delay > c.cfg.MaxReconnectDelay {
		delay = c.cfg.MaxReconnectDelay
	}
	return delay
}

// Run connects and keeps reconnecting until ctx is cancelled or Close is
// called. It never gives up on its own and always returns nil.
func (c *Channel) Run(ctx context.Context) error {
	defer c.setState(StateClosed)

	attempt := 0
	for !c.stopped(ctx) {
		c.setState(StateConnecting)
		connected, err := c.session(ctx)
		c.setState(StateDisconnected)
		if c.stopped(ctx) {
			break
		}
		if connected {
			attempt = 0
		}

		delay := c.backoff(attempt)
		attempt++
		c.logger.Warn("realtime channel lost, reconnecting",
			zap.Error(err), zap.Duration("delay", delay), zap.Int("attempt", attempt))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		case <-c.done:
			timer.Stop()
		}
	}
	return nil
}

// conn wraps a websocket connection with a write lock, since gorilla
// connections allow one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (cn *conn) send(data []byte) error {
	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	_ = cn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cn.ws.WriteMessage(websocket.TextMessage, data)
}

func (cn *conn) sendFrame(f *frame.Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", f.Command, err)
	}
	return cn.send(data)
}

// heartbeats negotiates intervals from the server's heart-beat header.
// It returns how often the client must send and the longest silence the
// client tolerates from the server.
func (c *Channel) heartbeats(serverHeader string) (send, recv time.Duration) {
	if c.cfg.Heartbeat <= 0 || serverHeader == "" {
		return 0, 0
	}
	sx, sy := parseHeartbeat(serverHeader)
	ours := c.cfg.Heartbeat
	if sy > 0 {
		send = max(ours, sy)
	}
	if sx > 0 {
		recv = 2 * max(ours, sx)
	}
	return send, recv
}

func parseHeartbeat(h string) (time.Duration, time.Duration) {
	a, b, ok := strings.Cut(h, ",")
	if !ok {
		return 0, 0
	}
	x, errX := strconv.Atoi(strings.TrimSpace(a))
	y, errY := strconv.Atoi(strings.TrimSpace(b))
	if errX != nil || errY != nil || x < 0 || y < 0 {
		return 0, 0
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond
}

func (c *Channel) connectFrame() *frame.Frame {
	host := "localhost"
	if u, err := url.Parse(c.cfg.URL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	hb := int(c.cfg.Heartbeat / time.Millisecond)
	f := frame.New(CmdConnect,
		"accept-version", "1.2",
		"host", host,
		"heart-beat", fmt.Sprintf("%d,%d", hb, hb),
		"userId", strconv.FormatInt(c.cfg.UserID, 10),
	)
	if c.cfg.Token != "" {
		f.Header.Add("Authorization", "Bearer "+c.cfg.Token)
	}
	return f
}

// session runs one connection until it fails or the channel stops. It
// reports whether the STOMP handshake completed.
func (c *Channel) session(ctx context.Context) (bool, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dialing %s: %w", c.cfg.URL, err)
	}
	cn := &conn{ws: ws}

	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		case <-sessionDone:
			return
		}
		_ = cn.sendFrame(frame.New(CmdDisconnect, "receipt", uuid.NewString()))
		cn.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		cn.writeMu.Unlock()
		_ = ws.Close()
	}()
	defer ws.Close()

	if err := cn.sendFrame(c.connectFrame()); err != nil {
		return false, fmt.Errorf("sending CONNECT: %w", err)
	}

	connected, err := c.awaitConnected(ws)
	if err != nil {
		return false, err
	}
	sendEvery, recvWithin := c.heartbeats(connected.Header.Get("heart-beat"))

	for _, dest := range c.cfg.Destinations {
		sub := frame.New(CmdSubscribe,
			"id", "sub-"+uuid.NewString(),
			"destination", dest,
			"ack", "auto",
		)
		if err := cn.sendFrame(sub); err != nil {
			return true, fmt.Errorf("subscribing to %s: %w", dest, err)
		}
	}

	c.setState(StateConnected)
	c.logger.Info("realtime channel connected",
		zap.String("url", c.cfg.URL), zap.Duration("heartbeat", sendEvery))

	if sendEvery > 0 {
		go c.heartbeatLoop(cn, sendEvery, sessionDone)
	}

	return true, c.readLoop(ws, recvWithin)
}

func (c *Channel) awaitConnected(ws *websocket.Conn) (*frame.Frame, error) {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("waiting for CONNECTED: %w", err)
		}
		frames, err := DecodeFrames(data)
		if err != nil {
			return nil, fmt.Errorf("decoding handshake reply: %w", err)
		}
		for _, f := range frames {
			switch f.Command {
			case CmdConnected:
				_ = ws.SetReadDeadline(time.Time{})
				return f, nil
			case CmdError:
				return nil, fmt.Errorf("server rejected CONNECT: %s", errorText(f))
			}
		}
	}
}

func (c *Channel) heartbeatLoop(cn *conn, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := cn.send([]byte("\n")); err != nil {
				c.logger.Debug("heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Channel) readLoop(ws *websocket.Conn, recvWithin time.Duration) error {
	for {
		if recvWithin > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(recvWithin))
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}

		frames, err := DecodeFrames(data)
		if err != nil {
			c.logger.Warn("skipping malformed STOMP frame", zap.Error(err), zap.Int("bytes", len(data)))
		}
		for _, f := range frames {
			if err := c.dispatch(f); err != nil {
				return err
			}
		}
	}
}

// errServerError is returned when the server sends an ERROR frame, after
// which STOMP requires the connection to be closed.
var errServerError = errors.New("server sent ERROR frame")

// dispatch routes one frame. Payload decode failures are logged and
// skipped; only ERROR frames end the session.
func (c *Channel) dispatch(f *frame.Frame) error {
	switch f.Command {
	case CmdMessage:
	case CmdError:
		c.logger.Warn("realtime server error", zap.String("message", errorText(f)))
		return fmt.Errorf("%w: %s", errServerError, errorText(f))
	default:
		return nil
	}

	dest := f.Header.Get("destination")
	switch classify(dest) {
	case destNotifications:
		n, err := DecodeNotification(f.Body)
		if err != nil {
			c.logger.Warn("skipping malformed notification frame",
				zap.String("destination", dest), zap.Error(err))
			return nil
		}
		c.handler.HandleNotification(n)
	case destUnreadCount:
		count, err := DecodeUnreadCount(f.Body)
		if err != nil {
			c.logger.Warn("skipping malformed unread-count frame",
				zap.String("destination", dest), zap.Error(err))
			return nil
		}
		c.handler.HandleUnreadCount(count)
	default:
		c.logger.Debug("ignoring frame for unknown destination", zap.String("destination", dest))
	}
	return nil
}

func errorText(f *frame.Frame) string {
	if msg := f.Header.Get("message"); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(f.Body))
}
