package testutil

import (
	"bytes"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/goccy/go-json"
)

func jsonString(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readFrames parses the client frames in one WebSocket message.
func readFrames(data []byte) ([]*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(data))
	var out []*frame.Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if f != nil {
			out = append(out, f)
		}
	}
}

func encode(f *frame.Frame) string {
	var buf bytes.Buffer
	_ = frame.NewWriter(&buf).Write(f)
	return buf.String()
}

func (b *Backend) serveWS(c *gin.Context) {
	ws, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := &stompConn{ws: ws, subs: make(map[string]string)}
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frames, err := readFrames(data)
		if err != nil {
			return
		}
		for _, f := range frames {
			if !b.handleFrame(conn, f) {
				return
			}
		}
	}
}

// handleFrame applies one client frame and reports whether the
// connection stays open.
func (b *Backend) handleFrame(conn *stompConn, f *frame.Frame) bool {
	switch f.Command {
	case "CONNECT", "STOMP":
		b.mu.Lock()
		reject := b.rejectConnect
		hb := b.heartBeat
		if reject == "" {
			b.connects++
			b.conns[conn] = struct{}{}
		}
		b.mu.Unlock()

		if reject != "" {
			_ = conn.write(encode(frame.New("ERROR", "message", reject)))
			return false
		}
		_ = conn.write(encode(frame.New("CONNECTED", "version", "1.2", "heart-beat", hb)))

	case "SUBSCRIBE":
		conn.mu.Lock()
		conn.subs[f.Header.Get("destination")] = f.Header.Get("id")
		conn.mu.Unlock()

	case "UNSUBSCRIBE":
		conn.mu.Lock()
		for dest, id := range conn.subs {
			if id == f.Header.Get("id") {
				delete(conn.subs, dest)
			}
		}
		conn.mu.Unlock()

	case "DISCONNECT":
		if r := f.Header.Get("receipt"); r != "" {
			_ = conn.write(encode(frame.New("RECEIPT", "receipt-id", r)))
		}
		return false
	}
	return true
}
