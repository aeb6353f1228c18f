package alert

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/model"
)

type fakeBus struct {
	mu      sync.Mutex
	nextID  uint32
	shown   []Message
	replace []uint32
	closed  []uint32
	pingErr error
	pings   int
	failAll bool
}

func (b *fakeBus) Notify(_ string, replaces uint32, m Message) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll {
		return 0, errors.New("no service")
	}
	b.shown = append(b.shown, m)
	b.replace = append(b.replace, replaces)
	if replaces != 0 {
		return replaces, nil
	}
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBus) CloseNotification(id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, id)
	return nil
}

func (b *fakeBus) Ping() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pings++
	return b.pingErr
}

func (b *fakeBus) closedIDs() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint32(nil), b.closed...)
}

type countingPlayer struct {
	mu    sync.Mutex
	plays int
	last  []byte
}

func (p *countingPlayer) Play(_ context.Context, wav []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	p.last = wav
	return nil
}

func TestDesktopDismissesAfterDelay(t *testing.T) {
	bus := &fakeBus{}
	d := NewDesktop(bus, "test", 30*time.Millisecond, nil)

	require.NoError(t, d.Show(Message{Tag: "a", Summary: "one"}))
	assert.Equal(t, 1, d.Pending())

	require.Eventually(t, func() bool { return len(bus.closedIDs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint32{1}, bus.closedIDs())
	assert.Zero(t, d.Pending())
}

func TestDesktopReplacesByTag(t *testing.T) {
	bus := &fakeBus{}
	d := NewDesktop(bus, "test", time.Hour, nil)
	t.Cleanup(d.Close)

	require.NoError(t, d.Show(Message{Tag: "a", Summary: "one"}))
	require.NoError(t, d.Show(Message{Tag: "a", Summary: "two"}))
	require.NoError(t, d.Show(Message{Tag: "b", Summary: "three"}))

	assert.Equal(t, []uint32{0, 1, 0}, bus.replace)
	assert.Equal(t, 2, d.Pending())
}

func TestDesktopCloseCancelsTimers(t *testing.T) {
	bus := &fakeBus{}
	d := NewDesktop(bus, "test", 20*time.Millisecond, nil)
	require.NoError(t, d.Show(Message{Tag: "a"}))

	d.Close()
	assert.Zero(t, d.Pending())
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, bus.closedIDs())

	require.NoError(t, d.Show(Message{Tag: "b"}))
	assert.Len(t, bus.shown, 1)
}

func TestSynthesize(t *testing.T) {
	samples := Synthesize(8000)
	require.Len(t, samples, 1600)

	peak := func(from, to int) int16 {
		var p int16
		for _, s := range samples[from:to] {
			if s < 0 {
				s = -s
			}
			if s > p {
				p = s
			}
		}
		return p
	}
	head, tail := peak(0, 100), peak(1500, 1600)
	assert.InDelta(t, 0.1*32767, float64(head), 0.02*32767)
	assert.Less(t, tail, head/4)
	assert.Len(t, Synthesize(0), int(0.2*DefaultSampleRate))
}

func TestWAVRoundTrip(t *testing.T) {
	clip, err := WAV([]int16{1, -1, 2}, 8000)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(clip[0:4]))
	assert.Equal(t, "WAVE", string(clip[8:12]))

	d := wav.NewDecoder(bytes.NewReader(clip))
	require.True(t, d.IsValidFile())
	pcm, err := d.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(8000), d.SampleRate)
	assert.Equal(t, uint16(1), d.NumChans)
	assert.Equal(t, uint16(16), d.BitDepth)
	assert.Equal(t, []int{1, -1, 2}, pcm.Data)
}

func TestMemFileSeekAndOverwrite(t *testing.T) {
	var f memFile
	_, _ = f.Write([]byte("abcdef"))
	pos, err := f.Seek(2, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)
	_, _ = f.Write([]byte("XY"))
	_, err = f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	_, _ = f.Write([]byte("!"))
	assert.Equal(t, "abXYef!", string(f.buf))

	_, err = f.Seek(-10, io.SeekCurrent)
	assert.Error(t, err)
}

func TestBell(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Bell{W: &buf}).Play(context.Background(), nil))
	assert.Equal(t, "\a", buf.String())
	assert.NoError(t, (&Bell{}).Play(context.Background(), nil))
}

func TestAlerterRequiresPermissionForPopups(t *testing.T) {
	bus := &fakeBus{}
	player := &countingPlayer{}
	a := New(Options{Desktop: NewDesktop(bus, "test", time.Hour, nil), Player: player})
	t.Cleanup(a.Close)

	n := model.Notification{ID: 7, Title: "New task", Type: model.TypeTaskAssigned,
		Metadata: `{"taskName":"Fix login","assignedBy":"Ann"}`}

	a.Alert(n)
	assert.Empty(t, bus.shown)
	assert.Equal(t, 1, player.plays)
	assert.Equal(t, "RIFF", string(player.last[:4]))

	require.True(t, a.RequestPermission(context.Background()))
	require.True(t, a.RequestPermission(context.Background()))
	assert.Equal(t, 1, bus.pings)

	a.Alert(enrich.Enrich(n))
	require.Len(t, bus.shown, 1)
	assert.Equal(t, "notification-7", bus.shown[0].Tag)
	assert.Equal(t, "New task", bus.shown[0].Summary)
	assert.Contains(t, bus.shown[0].Body, `"Fix login"`)
	assert.Contains(t, bus.shown[0].Body, "Ann")
}

func TestAlerterDeniedAndFailures(t *testing.T) {
	bus := &fakeBus{pingErr: errors.New("no service")}
	a := New(Options{Desktop: NewDesktop(bus, "test", time.Hour, nil)})
	assert.False(t, a.RequestPermission(context.Background()))
	a.Alert(model.Notification{ID: 1})
	assert.Empty(t, bus.shown)

	failing := &fakeBus{failAll: true}
	b := New(Options{Desktop: NewDesktop(failing, "test", time.Hour, nil)})
	require.True(t, b.RequestPermission(context.Background()))
	assert.NotPanics(t, func() { b.Alert(model.Notification{ID: 2}) })

	none := New(Options{})
	assert.False(t, none.RequestPermission(context.Background()))
	assert.NotPanics(t, func() { none.Alert(model.Notification{ID: 3}) })
}
