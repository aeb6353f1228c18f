// Package backlog seeds a session's notification store with the user's
// unread backlog, falling back to offline data when the backend is down.
package backlog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/model"
)

// fetchTimeout is the maximum time allowed for the backlog request.
const fetchTimeout = 15 * time.Second

// Fetcher loads the unread backlog of a user.
type Fetcher interface {
	UnreadNotifications(ctx context.Context, userID int64) ([]model.Notification, error)
}

// Seeder receives the loaded backlog.
type Seeder interface {
	Seed(items []model.Notification)
}

// Fallback selects what is seeded when the fetch fails.
type Fallback int

const (
	FallbackSamples Fallback = iota
	FallbackEmpty
)

// ParseFallback maps the config strings "samples" and "empty".
func ParseFallback(s string) Fallback {
	if s == "empty" {
		return FallbackEmpty
	}
	return FallbackSamples
}

// Source says where seeded data came from.
type Source int

const (
	SourceServer Source = iota
	SourceSamples
	SourceEmpty
)

func (s Source) String() string {
	switch s {
	case SourceServer:
		return "server"
	case SourceSamples:
		return "samples"
	default:
		return "empty"
	}
}

// Result describes one load.
type Result struct {
	UserID int64
	Source Source
	Count  int
	// Err is the fetch failure that triggered the fallback, if any.
	Err error
}

// Loader fetches the backlog once per identified user.
type Loader struct {
	fetch    Fetcher
	seed     Seeder
	fallback Fallback
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	current int64
	loaded  bool
}

// NewLoader creates a Loader that seeds into s.
func NewLoader(f Fetcher, s Seeder, fallback Fallback, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		fetch:    f,
		seed:     s,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "backlog")),
		now:      time.Now,
	}
}

// Identify loads the backlog for userID unless it was already loaded for
// that same id. It reports whether a load ran.
func (l *Loader) Identify(ctx context.Context, userID int64) (Result, bool) {
	l.mu.Lock()
	if l.loaded && l.current == userID {
		l.mu.Unlock()
		return Result{}, false
	}
	l.current = userID
	l.loaded = true
	l.mu.Unlock()

	return l.load(ctx, userID), true
}

// Reload fetches again for the current user.
func (l *Loader) Reload(ctx context.Context) (Result, bool) {
	l.mu.Lock()
	userID, loaded := l.current, l.loaded
	l.mu.Unlock()
	if !loaded {
		return Result{}, false
	}
	return l.load(ctx, userID), true
}

// load fetches and seeds. Failures never escape: they are logged and the
// fallback is seeded instead.
func (l *Loader) load(parent context.Context, userID int64) Result {
	ctx, cancel := context.WithTimeout(parent, fetchTimeout)
	defer cancel()

	items, err := l.fetch.UnreadNotifications(ctx, userID)
	if err == nil {
		l.seed.Seed(items)
		l.logger.Info("backlog loaded", zap.Int64("user_id", userID), zap.Int("count", len(items)))
		return Result{UserID: userID, Source: SourceServer, Count: len(items)}
	}

	// A cancelled session seeds nothing; its store is going away.
	if parent.Err() != nil {
		return Result{UserID: userID, Source: SourceEmpty, Err: err}
	}

	res := Result{UserID: userID, Err: err}
	switch l.fallback {
	case FallbackEmpty:
		l.seed.Seed(nil)
		res.Source = SourceEmpty
	default:
		samples := Samples(l.now())
		l.seed.Seed(samples)
		res.Source = SourceSamples
		res.Count = len(samples)
	}
	l.logger.Warn("backlog unavailable, using fallback",
		zap.Int64("user_id", userID), zap.Stringer("fallback", res.Source), zap.Error(err))
	return res
}
