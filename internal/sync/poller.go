// Package sync reconciles the unread counter with the server while the
// realtime channel is unavailable.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/api"
)

// SyncState represents the current state of the count poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the poller's last outcome.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// CountResultMsg is a tea.Msg sent when a poll completes.
type CountResultMsg struct {
	UserID    int64
	Count     int
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is a tea.Msg sent when the backend rejects the credentials.
type AuthErrorMsg struct {
	Message string
}

// fetchTimeout is the maximum time allowed for a single count request.
const fetchTimeout = 10 * time.Second

// Counter fetches the server's unread count.
type Counter interface {
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

// Sink receives polled counts.
type Sink interface {
	SetServerUnread(count int)
}

// Poller periodically fetches the unread count while Live reports false.
type Poller struct {
	userID   int64
	counter  Counter
	sink     Sink
	live     func() bool
	interval time.Duration
	logger   *zap.Logger

	status    SyncStatus
	resultCh  chan CountResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
	stopped   bool
}

// New creates a Poller for userID. live reports whether the realtime channel
// is connected; polls are skipped while it returns true. A nil live always
// polls.
func New(userID int64, c Counter, s Sink, live func() bool, interval time.Duration, logger *zap.Logger) *Poller {
	if live == nil {
		live = func() bool { return false }
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		userID:    userID,
		counter:   c,
		sink:      s,
		live:      live,
		interval:  interval,
		logger:    logger.With(zap.String("component", "count-poller")),
		resultCh:  make(chan CountResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutine and returns a tea.Cmd delivering the
// first CountResultMsg. It returns nil when already started or stopped.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()
	return p.waitForResult()
}

// Stop halts polling. A stopped Poller cannot be restarted.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true
	p.running = false
	close(p.stopCh)
}

// RefreshNow requests an immediate poll, regardless of the channel state.
func (p *Poller) RefreshNow() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A refresh is already queued.
	}
	return nil
}

// Status returns the poller's last outcome.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if p.live() {
				continue
			}
			p.poll()
		case <-p.triggerCh:
			p.poll()
		}
	}
}

// poll performs a single fetch and feeds the result to the sink.
func (p *Poller) poll() {
	p.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	count, err := p.counter.UnreadCount(ctx, p.userID)
	if p.isStopped() {
		return
	}
	if err != nil {
		p.setStatus(SyncError, err)
		p.logger.Warn("unread count poll failed", zap.Error(err))

		if api.IsAuthError(err) {
			p.sendResult(CountResultMsg{
				UserID: p.userID,
				Error:  err,
				AuthError: &AuthErrorMsg{
					Message: fmt.Sprintf("user %d: authentication rejected. Check the API token.", p.userID),
				},
			})
			return
		}
		p.sendResult(CountResultMsg{UserID: p.userID, Error: err})
		return
	}

	p.sink.SetServerUnread(count)
	p.setStatus(SyncIdle, nil)
	p.sendResult(CountResultMsg{UserID: p.userID, Count: count})
}

func (p *Poller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}

// sendResult sends a CountResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg CountResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next poll result or
// for the poller to stop.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case result := <-p.resultCh:
			return result
		case <-p.stopCh:
			return nil
		}
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next poll result.
// Call it after handling a CountResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
