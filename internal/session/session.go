// Package session owns everything scoped to one signed-in user: the
// notification store, the realtime channel, the backlog load and the
// count poller. Switching users tears the whole set down.
package session

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/worknotify/internal/api"
	"github.com/nhle/worknotify/internal/backlog"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/notify"
	"github.com/nhle/worknotify/internal/realtime"
	"github.com/nhle/worknotify/internal/sync"
)

// ErrNoUser is returned when a session is opened without a user id.
var ErrNoUser = errors.New("no user id")

// Config carries the per-session settings.
type Config struct {
	UserID   int64
	Realtime realtime.Config
	Policy   notify.Policy
	Fallback backlog.Fallback

	// PollInterval drives the count poller while realtime is down. Zero
	// disables the poller.
	PollInterval time.Duration
}

// ConfigFrom derives a session Config from the application config.
func ConfigFrom(cfg *model.AppConfig, token string) Config {
	return Config{
		UserID: cfg.UserID,
		Realtime: realtime.Config{
			URL:               cfg.Realtime.URL,
			Token:             token,
			ReconnectDelay:    cfg.Realtime.ReconnectDelay(),
			MaxReconnectDelay: cfg.Realtime.MaxReconnectDelay(),
			Heartbeat:         cfg.Realtime.Heartbeat(),
		},
		Policy:       notify.ParsePolicy(cfg.Notifications.ConfirmPolicy),
		Fallback:     backlog.ParseFallback(cfg.Notifications.OfflineFallback),
		PollInterval: cfg.Notifications.PollInterval(),
	}
}

// Deps are the collaborators shared across sessions.
type Deps struct {
	Client  *api.Client
	Alerter notify.Alerter
	Logger  *zap.Logger

	// OnState, when set, observes realtime state changes of live sessions.
	OnState func(userID int64, s realtime.State)
}

// Session is one user's live notification pipeline.
type Session struct {
	id     string
	userID int64
	logger *zap.Logger

	store   *notify.Store
	channel *realtime.Channel
	loader  *backlog.Loader
	poller  *sync.Poller

	ready  chan struct{}
	cancel context.CancelFunc
	group  *errgroup.Group
	closed atomic.Bool

	closeOnce gosync.Once
	closeErr  error
}

// Open starts a session for cfg.UserID. The backlog load and the realtime
// connection proceed in the background; Open does not wait for either.
func Open(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	if cfg.UserID <= 0 {
		return nil, ErrNoUser
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		id:     uuid.NewString(),
		userID: cfg.UserID,
		ready:  make(chan struct{}),
	}
	s.logger = logger.With(zap.String("session_id", s.id), zap.Int64("user_id", cfg.UserID))

	var confirmer notify.Confirmer
	var fetcher backlog.Fetcher = emptyFetcher{}
	if deps.Client != nil {
		confirmer = deps.Client
		fetcher = deps.Client
	}
	s.store = notify.NewStore(cfg.UserID, notify.Options{
		Confirmer: confirmer,
		Alerter:   deps.Alerter,
		Policy:    cfg.Policy,
		Logger:    s.logger,
	})
	s.loader = backlog.NewLoader(fetcher, s.store, cfg.Fallback, s.logger)

	rc := cfg.Realtime
	rc.UserID = cfg.UserID
	s.channel = realtime.New(rc, &guard{s: s}, s.logger)
	if deps.OnState != nil {
		s.channel.OnStateChange(func(st realtime.State) {
			if !s.closed.Load() || st == realtime.StateClosed {
				deps.OnState(s.userID, st)
			}
		})
	}

	if cfg.PollInterval > 0 && deps.Client != nil {
		live := func() bool { return s.channel.State() == realtime.StateConnected }
		s.poller = sync.New(cfg.UserID, deps.Client, &guard{s: s}, live, cfg.PollInterval, s.logger)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	s.group = g

	g.Go(func() error {
		defer close(s.ready)
		s.loader.Identify(gctx, cfg.UserID)
		return nil
	})
	g.Go(func() error {
		return s.channel.Run(gctx)
	})
	if s.poller != nil {
		s.poller.Start()
	}

	s.logger.Info("session opened")
	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// UserID returns the user this session belongs to.
func (s *Session) UserID() int64 { return s.userID }

// Store returns the session's notification store.
func (s *Session) Store() *notify.Store { return s.store }

// Poller returns the count poller, or nil when polling is disabled.
func (s *Session) Poller() *sync.Poller { return s.poller }

// State returns the realtime connection state.
func (s *Session) State() realtime.State { return s.channel.State() }

// Ready is closed once the initial backlog load has finished, whatever
// its outcome.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Reload fetches the backlog again.
func (s *Session) Reload(ctx context.Context) (backlog.Result, bool) {
	if s.closed.Load() {
		return backlog.Result{}, false
	}
	return s.loader.Reload(ctx)
}

// Alive reports whether the session has not been closed.
func (s *Session) Alive() bool { return !s.closed.Load() }

// Close tears the session down: the channel disconnects, timers and
// in-flight confirmations are cancelled, and the store stops accepting
// events. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.poller != nil {
			s.poller.Stop()
		}
		_ = s.channel.Close()
		s.cancel()

		err := s.group.Wait()
		_ = s.store.Close()
		s.store.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("closing session %s: %w", s.id, err)
		}
		s.logger.Info("session closed")
	})
	return s.closeErr
}

// guard forwards events into the store only while the session is alive,
// so late callbacks from a torn-down session never touch a newer one.
type guard struct {
	s *Session
}

func (g *guard) HandleNotification(n model.Notification) {
	if g.s.closed.Load() {
		return
	}
	if n.UserID != 0 && n.UserID != g.s.userID {
		g.s.logger.Warn("dropping notification for another user",
			zap.Int64("notification_id", n.ID), zap.Int64("for_user", n.UserID))
		return
	}
	g.s.store.Add(n)
}

func (g *guard) HandleUnreadCount(count int) {
	g.SetServerUnread(count)
}

func (g *guard) SetServerUnread(count int) {
	if g.s.closed.Load() {
		return
	}
	g.s.store.SetServerUnread(count)
}

type emptyFetcher struct{}

func (emptyFetcher) UnreadNotifications(context.Context, int64) ([]model.Notification, error) {
	return nil, errors.New("no backend configured")
}
