package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/api"
	"github.com/nhle/worknotify/internal/backlog"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/notify"
	"github.com/nhle/worknotify/internal/realtime"
	"github.com/nhle/worknotify/internal/testutil"
)

func testDeps(b *testutil.Backend) Deps {
	return Deps{
		Client: api.NewClient(b.APIURL(), "", 2*time.Second),
		Logger: zap.NewNop(),
	}
}

func testConfig(b *testutil.Backend, userID int64) Config {
	return Config{
		UserID: userID,
		Realtime: realtime.Config{
			URL:            b.WSURL(),
			ReconnectDelay: 20 * time.Millisecond,
		},
		Policy:   notify.KeepOnFailure,
		Fallback: backlog.FallbackEmpty,
	}
}

func itemCount(s *Session) func() bool {
	return func() bool { return len(s.Store().Snapshot().Items) > 0 }
}

func waitReady(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("backlog load did not finish")
	}
}

func TestOpenRequiresUser(t *testing.T) {
	_, err := Open(context.Background(), Config{}, Deps{})
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestSessionPipeline(t *testing.T) {
	b := testutil.NewBackend(t)
	b.SetUnread(42, []model.Notification{
		{ID: 1, Type: model.TypeTaskAssigned, Title: "a"},
		{ID: 2, Type: model.TypeCommentAdded, Title: "b"},
	})

	s, err := Open(context.Background(), testConfig(b, 42), testDeps(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.NotEmpty(t, s.ID())

	require.Eventually(t, itemCount(s), 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, s.Store().UnreadCount())

	b.WaitSubscribed(t, "/topic/notifications/42", 2*time.Second)
	b.Push("/topic/notifications/42", `{"id":3,"type":"TASK_UPDATED","title":"c"}`)
	require.Eventually(t, func() bool { return s.Store().UnreadCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(3), s.Store().Snapshot().Items[0].ID)

	b.WaitSubscribed(t, "/topic/unread-count/42", 2*time.Second)
	b.Push("/topic/unread-count/42", `{"count": 11}`)
	require.Eventually(t, func() bool { return s.Store().Snapshot().Badge() == 11 }, 2*time.Second, 10*time.Millisecond)

	require.True(t, s.Store().MarkAsRead(1))
	s.Store().Wait()
	assert.True(t, b.HasCall("PUT /api/notifications/1/read"))
	assert.Equal(t, 2, s.Store().Snapshot().Badge())
}

func TestSessionDropsOtherUsersNotifications(t *testing.T) {
	b := testutil.NewBackend(t)
	s, err := Open(context.Background(), testConfig(b, 42), testDeps(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	waitReady(t, s)
	b.WaitSubscribed(t, "/topic/notifications/42", 2*time.Second)
	b.Push("/topic/notifications/42", `{"id":5,"userId":7}`)
	b.Push("/topic/notifications/42", `{"id":6,"userId":42}`)

	require.Eventually(t, itemCount(s), 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	items := s.Store().Snapshot().Items
	require.Len(t, items, 1)
	assert.Equal(t, int64(6), items[0].ID)
}

func TestSessionCloseStopsEverything(t *testing.T) {
	b := testutil.NewBackend(t)

	var mu sync.Mutex
	var states []realtime.State
	deps := testDeps(b)
	deps.OnState = func(_ int64, st realtime.State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
	}

	s, err := Open(context.Background(), testConfig(b, 42), deps)
	require.NoError(t, err)
	b.WaitSubscribed(t, "/topic/notifications/42", 2*time.Second)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Alive())
	assert.True(t, s.Store().Closed())
	assert.Equal(t, realtime.StateClosed, s.State())

	mu.Lock()
	assert.Equal(t, realtime.StateClosed, states[len(states)-1])
	mu.Unlock()

	// The channel stays down after close.
	connects := b.Connects()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, connects, b.Connects())

	_, ran := s.Reload(context.Background())
	assert.False(t, ran)
}

func TestSessionPollsWhileRealtimeDown(t *testing.T) {
	b := testutil.NewBackend(t)
	b.SetUnread(42, []model.Notification{{ID: 1}, {ID: 2}})
	b.RejectConnect("maintenance")

	cfg := testConfig(b, 42)
	cfg.PollInterval = 20 * time.Millisecond
	s, err := Open(context.Background(), cfg, testDeps(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NotNil(t, s.Poller())
	require.Eventually(t, func() bool {
		snap := s.Store().Snapshot()
		return snap.HasServerUnread && snap.ServerUnread == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, realtime.StateConnected, s.State())
}

func TestManagerSwitch(t *testing.T) {
	b := testutil.NewBackend(t)
	b.SetUnread(42, []model.Notification{{ID: 1}})
	b.SetUnread(7, []model.Notification{{ID: 9}, {ID: 10}})

	m := NewManager(testConfig(b, 0), testDeps(b))
	t.Cleanup(func() { _ = m.Logout() })

	first, err := m.Switch(context.Background(), 42)
	require.NoError(t, err)
	require.Eventually(t, itemCount(first), 2*time.Second, 10*time.Millisecond)

	same, err := m.Switch(context.Background(), 42)
	require.NoError(t, err)
	assert.Same(t, first, same)

	second, err := m.Switch(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, first.Alive())
	assert.Same(t, second, m.Current())

	require.Eventually(t, func() bool { return second.Store().UnreadCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	b.WaitSubscribed(t, "/topic/notifications/7", 2*time.Second)

	// Events for the previous user never reach the new store.
	b.Push("/topic/notifications/42", `{"id":77}`)
	time.Sleep(50 * time.Millisecond)
	_, found := second.Store().Get(77)
	assert.False(t, found)

	require.NoError(t, m.Logout())
	assert.Nil(t, m.Current())
	assert.False(t, second.Alive())
	require.NoError(t, m.Logout())
}
