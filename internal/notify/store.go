// Package notify holds the per-session notification store: the ordered
// feed, its unread counter, and the optimistic read/clear actions that are
// confirmed against the backend in the background.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/model"
)

// confirmTimeout bounds a single background confirmation request.
const confirmTimeout = 15 * time.Second

// Policy decides what happens to an optimistic change when the backend
// rejects it or cannot be reached.
type Policy int

const (
	// KeepOnFailure leaves the local change in place and logs the failure.
	KeepOnFailure Policy = iota
	// RollbackOnFailure reverts the entries the action changed and reports
	// an ActionError to subscribers.
	RollbackOnFailure
)

// ParsePolicy maps the config strings "keep" and "rollback" to a Policy.
func ParsePolicy(s string) Policy {
	if s == "rollback" {
		return RollbackOnFailure
	}
	return KeepOnFailure
}

// Confirmer sends read/clear actions to the backend.
type Confirmer interface {
	MarkRead(ctx context.Context, userID, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64) error
	DeleteAll(ctx context.Context, userID int64) error
}

// Alerter raises out-of-band cues for new arrivals. Implementations must
// not block for long; Alert is called from its own goroutine.
type Alerter interface {
	Alert(n model.Notification)
	RequestPermission(ctx context.Context) bool
}

// Action names a user-initiated mutation.
type Action string

const (
	ActionMarkRead    Action = "mark-read"
	ActionMarkAllRead Action = "mark-all-read"
	ActionClearAll    Action = "clear-all"
)

// ActionError reports a confirmation that failed and was rolled back.
type ActionError struct {
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Snapshot is an immutable view of the store at one point in time.
type Snapshot struct {
	Items  []model.Notification
	Unread int

	// ServerUnread is the last count pushed by the server, valid when
	// HasServerUnread is set. Local mutations clear it.
	ServerUnread    int
	HasServerUnread bool

	// Err is set on the snapshot published right after a rolled-back action.
	Err *ActionError
}

// Badge returns the counter to display: the server's snapshot when one is
// newer than any local change, otherwise the count derived from Items.
func (s Snapshot) Badge() int {
	if s.HasServerUnread {
		return s.ServerUnread
	}
	return s.Unread
}

// Options configures a Store.
type Options struct {
	Confirmer Confirmer
	Alerter   Alerter
	Policy    Policy
	Logger    *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the notification feed for exactly one user session. All methods
// are safe for concurrent use. After Close every mutation is a no-op.
type Store struct {
	userID  int64
	confirm Confirmer
	alerter Alerter
	policy  Policy
	logger  *zap.Logger
	now     func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup

	mu           sync.Mutex
	items        []model.Notification
	unread       int
	serverUnread *int
	lastTempID   int64
	closed       bool
	subs         map[int]chan Snapshot
	nextSub      int
}

// NewStore creates an empty store for userID.
func NewStore(userID int64, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		userID:  userID,
		confirm: opts.Confirmer,
		alerter: opts.Alerter,
		policy:  opts.Policy,
		logger:  logger.With(zap.Int64("user_id", userID)),
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[int]chan Snapshot),
	}
}

// UserID returns the user this store belongs to.
func (s *Store) UserID() int64 {
	return s.userID
}

// commit installs items and recomputes the counter from them. Callers hold mu.
func (s *Store) commit(items []model.Notification) {
	s.items = items
	s.unread = countUnread(items)
}

func countUnread(items []model.Notification) int {
	n := 0
	for _, it := range items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// Seed replaces the feed wholesale. Entries are enriched and the counter is
// recomputed from their read state.
func (s *Store) Seed(items []model.Notification) {
	enriched := enrich.EnrichAll(items)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.commit(enriched)
	s.serverUnread = nil
	s.publishLocked(nil)
	s.mu.Unlock()
}

// Add prepends a newly arrived notification and fires the platform alert.
// Entries without an id get a temporary one. A second delivery of an id
// already in the feed is dropped. The stored entry is returned.
func (s *Store) Add(n model.Notification) model.Notification {
	n = enrich.Enrich(n)
	n.IsRead = false
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return n
	}
	if n.ID == 0 {
		n.ID = s.tempIDLocked()
		n.Temporary = true
	} else if idx := indexOf(s.items, n.ID); idx >= 0 {
		existing := s.items[idx]
		s.mu.Unlock()
		s.logger.Debug("dropping duplicate delivery", zap.Int64("notification_id", n.ID))
		return existing
	}

	items := make([]model.Notification, 0, len(s.items)+1)
	items = append(items, n)
	items = append(items, s.items...)
	s.commit(items)
	s.serverUnread = nil
	s.publishLocked(nil)
	s.mu.Unlock()
	s.raiseAlert(n)
	return n
}

// tempIDLocked returns a placeholder id seeded from the wall clock in
// milliseconds and strictly increasing within the session.
func (s *Store) tempIDLocked() int64 {
	id := s.now().UnixMilli()
	if id <= s.lastTempID {
		id = s.lastTempID + 1
	}
	s.lastTempID = id
	return id
}

// MarkAsRead flips one entry to read and confirms it in the background. It
// reports whether anything changed; absent or already-read ids are no-ops.
func (s *Store) MarkAsRead(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	idx := indexOf(s.items, id)
	if idx < 0 || s.items[idx].IsRead {
		return false
	}

	items := cloneItems(s.items)
	items[idx].IsRead = true
	s.commit(items)
	s.serverUnread = nil
	s.publishLocked(nil)

	// The backend has never seen a temporary entry.
	if items[idx].Temporary {
		return true
	}
	s.confirmLocked(ActionMarkRead, func(ctx context.Context) error {
		return s.confirm.MarkRead(ctx, s.userID, id)
	}, func() {
		s.revertReadLocked([]int64{id})
	})
	return true
}

// MarkAllAsRead flips every unread entry and returns how many changed.
func (s *Store) MarkAllAsRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	items := cloneItems(s.items)
	var flipped []int64
	for i := range items {
		if !items[i].IsRead {
			items[i].IsRead = true
			flipped = append(flipped, items[i].ID)
		}
	}
	s.commit(items)
	s.serverUnread = nil
	s.publishLocked(nil)

	s.confirmLocked(ActionMarkAllRead, func(ctx context.Context) error {
		return s.confirm.MarkAllRead(ctx, s.userID)
	}, func() {
		s.revertReadLocked(flipped)
	})
	return len(flipped)
}

// ClearAll empties the feed and returns how many entries were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	removed := s.items
	s.commit(nil)
	s.serverUnread = nil
	s.publishLocked(nil)

	s.confirmLocked(ActionClearAll, func(ctx context.Context) error {
		return s.confirm.DeleteAll(ctx, s.userID)
	}, func() {
		s.restoreLocked(removed)
	})
	return len(removed)
}

// RequestNotificationPermission asks the platform for permission to show
// desktop notifications. It never panics and returns false when no
// alerter is configured or the request fails.
func (s *Store) RequestNotificationPermission(ctx context.Context) (granted bool) {
	if s.alerter == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("permission request panicked", zap.Any("panic", r))
			granted = false
		}
	}()
	return s.alerter.RequestPermission(ctx)
}

// SetServerUnread records the unread count pushed by the server. The list
// is untouched; the value is exposed through Snapshot.Badge until the next
// local mutation.
func (s *Store) SetServerUnread(count int) {
	if count < 0 {
		count = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.serverUnread = &count
	s.publishLocked(nil)
}

// UnreadCount returns the number of unread entries.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(nil)
}

// Get returns the entry with the given id.
func (s *Store) Get(id int64) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := indexOf(s.items, id); idx >= 0 {
		return s.items[idx], true
	}
	return model.Notification{}, false
}

// Subscribe returns a channel that receives a snapshot after every change.
// The current state is delivered immediately. Delivery is latest-wins: a
// slow reader sees the most recent state, not every intermediate one. The
// channel is closed by cancel or Close.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked(nil)

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Wait blocks until all in-flight confirmations have finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

// Close cancels in-flight confirmations, closes subscriber channels and
// turns every later call into a no-op. Calling it again does nothing.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	s.cancel()
	s.pending.Wait()
	return nil
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) snapshotLocked(actionErr *ActionError) Snapshot {
	snap := Snapshot{
		Items:  cloneItems(s.items),
		Unread: s.unread,
		Err:    actionErr,
	}
	if s.serverUnread != nil {
		snap.ServerUnread = *s.serverUnread
		snap.HasServerUnread = true
	}
	return snap
}

// publishLocked delivers the current state to every subscriber, replacing
// any undelivered older snapshot. Callers hold mu, which keeps deliveries
// in commit order.
func (s *Store) publishLocked(actionErr *ActionError) {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked(actionErr)
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// confirmLocked sends an action to the backend in the background. On
// failure it logs, and under RollbackOnFailure also reverts and publishes an
// ActionError. Callers hold mu, so the goroutine is registered before any
// Close can wait on it.
func (s *Store) confirmLocked(action Action, send func(ctx context.Context) error, revert func()) {
	if s.confirm == nil {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(s.ctx, confirmTimeout)
		defer cancel()

		err := send(ctx)
		if err == nil || s.ctx.Err() != nil {
			return
		}

		if s.policy != RollbackOnFailure {
			s.logger.Warn("confirmation failed, keeping local state",
				zap.String("action", string(action)), zap.Error(err))
			return
		}

		s.logger.Warn("confirmation failed, rolling back",
			zap.String("action", string(action)), zap.Error(err))

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		revert()
		s.serverUnread = nil
		s.publishLocked(&ActionError{Action: action, Err: err})
	}()
}

// revertReadLocked marks the given ids unread again if they are still present.
func (s *Store) revertReadLocked(ids []int64) {
	if len(ids) == 0 {
		return
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	items := cloneItems(s.items)
	for i := range items {
		if _, ok := want[items[i].ID]; ok {
			items[i].IsRead = false
		}
	}
	s.commit(items)
}

// restoreLocked puts cleared entries back below anything that arrived since.
func (s *Store) restoreLocked(removed []model.Notification) {
	items := make([]model.Notification, 0, len(s.items)+len(removed))
	items = append(items, s.items...)
	for _, n := range removed {
		if indexOf(items, n.ID) < 0 {
			items = append(items, n)
		}
	}
	s.commit(items)
}

// raiseAlert fires the platform cues for n without blocking the caller.
func (s *Store) raiseAlert(n model.Notification) {
	if s.alerter == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Warn("alert panicked", zap.Int64("notification_id", n.ID), zap.Any("panic", r))
			}
		}()
		if s.ctx.Err() != nil {
			return
		}
		s.alerter.Alert(n)
	}()
}

func indexOf(items []model.Notification, id int64) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneItems(items []model.Notification) []model.Notification {
	if items == nil {
		return nil
	}
	out := make([]model.Notification, len(items))
	copy(out, items)
	return out
}
