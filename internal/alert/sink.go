package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Player plays a WAV clip.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// players are tried in order; each reads a WAV stream on stdin.
var players = [][]string{
	{"paplay"},
	{"aplay", "-q", "-"},
	{"afplay", "/dev/stdin"},
}

type execPlayer struct {
	argv []string
}

// FindPlayer returns the first audio player on PATH, or a Bell writing to
// fallback when none is installed.
func FindPlayer(fallback io.Writer) Player {
	for _, argv := range players {
		if path, err := exec.LookPath(argv[0]); err == nil {
			return &execPlayer{argv: append([]string{path}, argv[1:]...)}
		}
	}
	return &Bell{W: fallback}
}

func (p *execPlayer) Play(ctx context.Context, wav []byte) error {
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Stdin = bytes.NewReader(wav)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %w: %s", p.argv[0], err, bytes.TrimSpace(out))
	}
	return nil
}

// Bell rings the terminal bell instead of playing audio.
type Bell struct {
	mu sync.Mutex
	W  io.Writer
}

func (b *Bell) Play(context.Context, []byte) error {
	if b.W == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.W.Write([]byte{'\a'})
	return err
}
