package backlog

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/worknotify/internal/api"
	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/testutil"
)

type seedRecorder struct {
	mu    sync.Mutex
	seeds [][]model.Notification
}

func (s *seedRecorder) Seed(items []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds = append(s.seeds, items)
}

func (s *seedRecorder) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seeds)
}

func (s *seedRecorder) last() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeds[len(s.seeds)-1]
}

type fetchFunc func(ctx context.Context, userID int64) ([]model.Notification, error)

func (f fetchFunc) UnreadNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	return f(ctx, userID)
}

func TestIdentifyLoadsFromServerOncePerUser(t *testing.T) {
	b := testutil.NewBackend(t)
	b.SetUnread(42, []model.Notification{{ID: 1, Type: model.TypeTaskAssigned}, {ID: 2}})
	b.SetUnread(7, []model.Notification{{ID: 9}})
	client := api.NewClient(b.APIURL(), "", time.Second)

	seeds := &seedRecorder{}
	l := NewLoader(client, seeds, FallbackSamples, nil)
	ctx := context.Background()

	res, ran := l.Identify(ctx, 42)
	require.True(t, ran)
	assert.Equal(t, SourceServer, res.Source)
	assert.Equal(t, 2, res.Count)
	assert.NoError(t, res.Err)

	_, ran = l.Identify(ctx, 42)
	assert.False(t, ran)
	assert.Equal(t, 1, seeds.calls())

	res, ran = l.Identify(ctx, 7)
	require.True(t, ran)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, int64(9), seeds.last()[0].ID)

	res, ran = l.Reload(ctx)
	require.True(t, ran)
	assert.Equal(t, int64(7), res.UserID)
	assert.Equal(t, 3, seeds.calls())
}

func TestReloadBeforeIdentify(t *testing.T) {
	l := NewLoader(fetchFunc(func(context.Context, int64) ([]model.Notification, error) {
		t.Fatal("fetch must not run")
		return nil, nil
	}), &seedRecorder{}, FallbackSamples, nil)
	_, ran := l.Reload(context.Background())
	assert.False(t, ran)
}

func TestFailureSeedsSamples(t *testing.T) {
	b := testutil.NewBackend(t)
	b.FailWith("GET /api/notifications", http.StatusInternalServerError)
	client := api.NewClient(b.APIURL(), "", time.Second)

	seeds := &seedRecorder{}
	l := NewLoader(client, seeds, FallbackSamples, nil)
	res, ran := l.Identify(context.Background(), 42)
	require.True(t, ran)
	assert.Equal(t, SourceSamples, res.Source)
	assert.Equal(t, 3, res.Count)
	assert.Error(t, res.Err)

	items := seeds.last()
	require.Len(t, items, 3)
	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	assert.Equal(t, 2, unread)
}

func TestFailureSeedsEmpty(t *testing.T) {
	seeds := &seedRecorder{}
	l := NewLoader(fetchFunc(func(context.Context, int64) ([]model.Notification, error) {
		return nil, errors.New("connection refused")
	}), seeds, ParseFallback("empty"), nil)

	res, _ := l.Identify(context.Background(), 1)
	assert.Equal(t, SourceEmpty, res.Source)
	require.Equal(t, 1, seeds.calls())
	assert.Empty(t, seeds.last())
}

func TestCancelledLoadSeedsNothing(t *testing.T) {
	seeds := &seedRecorder{}
	l := NewLoader(fetchFunc(func(ctx context.Context, _ int64) ([]model.Notification, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), seeds, FallbackSamples, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, ran := l.Identify(ctx, 1)
	require.True(t, ran)
	assert.Error(t, res.Err)
	assert.Zero(t, seeds.calls())
}

func TestSamples(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := Samples(now)
	require.Len(t, items, 3)

	assert.Equal(t, model.TypeTaskAssigned, items[0].Type)
	assert.Equal(t, now.Add(-5*time.Minute), items[0].CreatedAt)
	assert.True(t, items[2].IsRead)

	d := enrich.ParseMetadata(items[0].Metadata)
	require.NotNil(t, d)
	assert.Equal(t, "Fix login", d.TaskName)
	assert.Contains(t, items[0].Message, `"`+d.TaskName+`"`, "raw message names the same task")
	assert.Equal(t, "2026-03-04", d.DueDate)
	require.NotNil(t, d.BoardID)
	assert.Equal(t, int64(10), *d.BoardID)

	r := Random(now, 4)
	assert.Zero(t, r.ID)
	assert.False(t, r.IsRead)
	assert.Equal(t, model.TypeCommentAdded, r.Type)
}

func TestParseFallback(t *testing.T) {
	assert.Equal(t, FallbackEmpty, ParseFallback("empty"))
	assert.Equal(t, FallbackSamples, ParseFallback("samples"))
	assert.Equal(t, FallbackSamples, ParseFallback(""))
}
