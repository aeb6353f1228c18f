package alert

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// DefaultSampleRate is used when Synthesize is given a non-positive rate.
	DefaultSampleRate = 22050

	chimeLength   = 0.2
	chimeStep     = 0.1
	chimeHigh     = 800.0
	chimeLow      = 600.0
	chimeStartAmp = 0.1
	chimeEndAmp   = 0.01
)

// Synthesize renders the arrival chime as mono 16-bit PCM: a sine that
// steps from 800 Hz to 600 Hz halfway through its 0.2 s, with gain
// falling exponentially from 0.1 to 0.01.
func Synthesize(rate int) []int16 {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	n := int(chimeLength * float64(rate))
	out := make([]int16, n)
	phase := 0.0
	for i := range out {
		t := float64(i) / float64(rate)
		freq := chimeHigh
		if t >= chimeStep {
			freq = chimeLow
		}
		gain := chimeStartAmp * math.Pow(chimeEndAmp/chimeStartAmp, t/chimeLength)
		// Accumulated phase keeps the waveform continuous across the step.
		phase += 2 * math.Pi * freq / float64(rate)
		out[i] = int16(gain * math.Sin(phase) * math.MaxInt16)
	}
	return out
}

// WAV wraps mono 16-bit samples in a RIFF/WAVE container.
func WAV(samples []int16, rate int) ([]byte, error) {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	const (
		channels      = 1
		bitsPerSample = 16
		pcmFormat     = 1
	)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	var out memFile
	enc := wav.NewEncoder(&out, rate, bitsPerSample, channels, pcmFormat)
	err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitsPerSample,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chime: %w", err)
	}
	// Close seeks back to fill in the chunk sizes.
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finishing chime: %w", err)
	}
	return out.buf, nil
}

// memFile is an in-memory io.WriteSeeker for the WAV encoder.
type memFile struct {
	buf []byte
	pos int
}

func (f *memFile) Write(p []byte) (int, error) {
	if end := f.pos + len(p); end > len(f.buf) {
		f.buf = append(f.buf, make([]byte, end-len(f.buf))...)
	}
	n := copy(f.buf[f.pos:], p)
	f.pos += n
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = len(f.buf)
	default:
		return 0, errors.New("invalid whence")
	}
	pos := base + int(offset)
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	f.pos = pos
	return int64(pos), nil
}
