package sync

import (
	"net/http"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/worknotify/internal/api"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/testutil"
)

type countSink struct {
	mu     gosync.Mutex
	counts []int
}

func (s *countSink) SetServerUnread(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, count)
}

func (s *countSink) all() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.counts...)
}

func newClient(t *testing.T) (*api.Client, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t)
	return api.NewClient(b.APIURL(), "", time.Second), b
}

func TestPollerFeedsSinkWhileOffline(t *testing.T) {
	client, b := newClient(t)
	b.SetUnread(42, []model.Notification{{ID: 1}, {ID: 2}, {ID: 3}})

	sink := &countSink{}
	p := New(42, client, sink, nil, 20*time.Millisecond, nil)
	cmd := p.Start()
	require.NotNil(t, cmd)
	t.Cleanup(p.Stop)

	msg, ok := cmd().(CountResultMsg)
	require.True(t, ok)
	assert.Equal(t, 3, msg.Count)
	assert.NoError(t, msg.Error)
	assert.Equal(t, 3, sink.all()[0])
	assert.Equal(t, SyncIdle, p.Status().State)
	assert.False(t, p.Status().LastSync.IsZero())

	assert.Nil(t, p.Start(), "second start is a no-op")
}

func TestPollerSkipsWhileLive(t *testing.T) {
	client, b := newClient(t)
	var live atomic.Bool
	live.Store(true)

	sink := &countSink{}
	p := New(42, client, sink, live.Load, 10*time.Millisecond, nil)
	p.Start()
	t.Cleanup(p.Stop)

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, sink.all())
	assert.False(t, b.HasCall("GET /api/notifications/user/42/unread-count"))

	p.RefreshNow()
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)

	live.Store(false)
	require.Eventually(t, func() bool { return len(sink.all()) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestPollerReportsAuthErrors(t *testing.T) {
	client, b := newClient(t)
	b.FailWith("GET /api/notifications", http.StatusUnauthorized)

	sink := &countSink{}
	p := New(42, client, sink, nil, 10*time.Millisecond, nil)
	cmd := p.Start()
	t.Cleanup(p.Stop)

	msg := cmd().(CountResultMsg)
	require.Error(t, msg.Error)
	require.NotNil(t, msg.AuthError)
	assert.Contains(t, msg.AuthError.Message, "user 42")
	assert.Empty(t, sink.all())
	assert.Equal(t, SyncError, p.Status().State)
}

func TestPollerStop(t *testing.T) {
	client, _ := newClient(t)
	p := New(1, client, &countSink{}, nil, time.Hour, nil)
	p.Start()
	p.Stop()
	p.Stop()

	assert.Nil(t, p.WaitForNextResult()())
	assert.Nil(t, p.Start())
}
