package realtime

import (
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecode(t *testing.T) {
	in := frame.New(CmdMessage,
		"destination", "/topic/notifications/42",
		"note", "a:b\nc\\d",
		"content-length", "8",
	)
	in.Body = []byte(`{"id":1}`)

	data, err := EncodeFrame(in)
	require.NoError(t, err)
	frames, err := DecodeFrames(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	out := frames[0]
	assert.Equal(t, CmdMessage, out.Command)
	assert.Equal(t, "/topic/notifications/42", out.Header.Get("destination"))
	assert.Equal(t, "a:b\nc\\d", out.Header.Get("note"))
	assert.Equal(t, `{"id":1}`, string(out.Body))
}

func TestDecodeHeartbeatsAndMultipleFrames(t *testing.T) {
	frames, err := DecodeFrames([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, frames)

	data := "\nRECEIPT\nreceipt-id:1\n\n\x00\nMESSAGE\ndestination:/x\n\nhello\x00\n"
	frames, err = DecodeFrames([]byte(data))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, CmdReceipt, frames[0].Command)
	assert.Equal(t, "hello", string(frames[1].Body))
}

func TestDecodeBodyWithNULUsesContentLength(t *testing.T) {
	data := "MESSAGE\ncontent-length:3\n\na\x00b\x00"
	frames, err := DecodeFrames([]byte(data))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("a\x00b"), frames[0].Body)
}

func TestDecodeRepeatedHeaderFirstWins(t *testing.T) {
	frames, err := DecodeFrames([]byte("MESSAGE\nfoo:1\nfoo:2\n\n\x00"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "1", frames[0].Header.Get("foo"))
}

func TestDecodeMalformed(t *testing.T) {
	for name, data := range map[string]string{
		"short body":         "MESSAGE\ncontent-length:10\n\nabc\x00",
		"bad header":         "MESSAGE\nnocolon\n\n\x00",
		"bad content-length": "MESSAGE\ncontent-length:-1\n\n\x00",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrames([]byte(data))
			assert.Error(t, err)
		})
	}

	frames, err := DecodeFrames([]byte("RECEIPT\nreceipt-id:1\n\n\x00MESSAGE\ncontent-length:x\n\n\x00"))
	assert.Error(t, err)
	require.Len(t, frames, 1, "frames before the bad one are kept")
	assert.Equal(t, CmdReceipt, frames[0].Command)
}

func TestDecodeUnreadCount(t *testing.T) {
	for body, want := range map[string]int{
		`{"count": 7}`: 7,
		"9":            9,
		" 12\n":        12,
		`"3"`:          3,
		`{"count":0}`:  0,
	} {
		got, err := DecodeUnreadCount([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, want, got, body)
	}

	for _, body := range []string{"", "x", `{"other":1}`, "-1", `{"count":"a"}`, "1.5"} {
		_, err := DecodeUnreadCount([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestDecodeNotification(t *testing.T) {
	n, err := DecodeNotification([]byte(`{"id":5,"type":"TASK_UPDATED","title":"t","isRead":false}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n.ID)

	for _, body := range []string{"", "[]", "42", "{broken"} {
		_, err := DecodeNotification([]byte(body))
		assert.Error(t, err, body)
	}
}
