package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/go-mp3"

	"github.com/MrWong99/murmur/pkg/audio"
)

// MP3 decodes an MP3 stream into 16-bit stereo PCM.
type MP3 struct {
	mu     sync.Mutex
	r      io.Reader
	dec    *mp3.Decoder
	format audio.Format
	done   bool
}

var _ Source = (*MP3)(nil)

// NewMP3 wraps r in an MP3 decoder. If r implements [io.Closer] it is closed
// by Close.
func NewMP3(r io.Reader) (*MP3, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	return &MP3{
		r:   r,
		dec: dec,
		// go-mp3 always emits signed 16-bit little-endian stereo.
		format: audio.Format{SampleRate: dec.SampleRate(), Channels: 2, SampleWidth: 2},
	}, nil
}

// Format implements [audio.Source].
func (m *MP3) Format() audio.Format { return m.format }

// Read implements [audio.Source].
func (m *MP3) Read(ctx context.Context, frames int) (audio.Sample, error) {
	if err := ctx.Err(); err != nil {
		return audio.Sample{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done {
		return audio.Empty(m.format), audio.ErrEndOfStream
	}

	var (
		data []byte
		err  error
	)
	if frames > 0 {
		buf := make([]byte, frames*m.format.FrameWidth())
		var n int
		n, err = io.ReadFull(m.dec, buf)
		data = buf[:n]
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
	} else {
		data, err = io.ReadAll(m.dec)
		if err == nil {
			err = io.EOF
		}
	}

	switch {
	case errors.Is(err, io.EOF):
		m.done = true
		if len(data) == 0 {
			return audio.Empty(m.format), audio.ErrEndOfStream
		}
	case err != nil:
		return audio.Sample{}, fmt.Errorf("mp3: decode: %w", err)
	}
	return audio.NewSample(data, m.format), nil
}

// Close closes the underlying reader when it is closable.
func (m *MP3) Close() error {
	if c, ok := m.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
