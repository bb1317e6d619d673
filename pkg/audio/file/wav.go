package file

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/murmur/pkg/audio"
)

// readAllChunk is the number of frames pulled per decoder call when a caller
// asks for everything that remains.
const readAllChunk = 4096

// WAV streams PCM frames out of a RIFF/WAVE file.
type WAV struct {
	mu     sync.Mutex
	rs     io.ReadSeeker
	dec    *wav.Decoder
	format audio.Format
	done   bool
}

var _ Source = (*WAV)(nil)

// NewWAV reads the WAV header from rs and returns a source positioned at the
// first PCM frame. If rs implements [io.Closer] it is closed by Close.
func NewWAV(rs io.ReadSeeker) (*WAV, error) {
	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.New("wav: not a valid RIFF/WAVE file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("wav: seek to pcm: %w", err)
	}
	format := audio.Format{
		SampleRate:  int(dec.SampleRate),
		Channels:    int(dec.NumChans),
		SampleWidth: int(dec.BitDepth) / 8,
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	return &WAV{rs: rs, dec: dec, format: format}, nil
}

// Format implements [audio.Source].
func (w *WAV) Format() audio.Format { return w.format }

// Read implements [audio.Source].
func (w *WAV) Read(ctx context.Context, frames int) (audio.Sample, error) {
	if err := ctx.Err(); err != nil {
		return audio.Sample{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return audio.Empty(w.format), audio.ErrEndOfStream
	}

	if frames > 0 {
		vals, err := w.readFrames(frames)
		if err != nil {
			return audio.Sample{}, err
		}
		if len(vals) == 0 {
			w.done = true
			return audio.Empty(w.format), audio.ErrEndOfStream
		}
		return w.encode(vals), nil
	}

	var all []int
	for {
		vals, err := w.readFrames(readAllChunk)
		if err != nil {
			return audio.Sample{}, err
		}
		if len(vals) == 0 {
			break
		}
		all = append(all, vals...)
	}
	w.done = true
	if len(all) == 0 {
		return audio.Empty(w.format), audio.ErrEndOfStream
	}
	return w.encode(all), nil
}

func (w *WAV) readFrames(frames int) ([]int, error) {
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: w.format.Channels, SampleRate: w.format.SampleRate},
		Data:   make([]int, frames*w.format.Channels),
	}
	n, err := w.dec.PCMBuffer(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("wav: decode: %w", err)
	}
	n -= n % w.format.Channels
	return buf.Data[:n], nil
}

func (w *WAV) encode(vals []int) audio.Sample {
	width := w.format.SampleWidth
	data := make([]byte, len(vals)*width)
	for i, v := range vals {
		off := i * width
		switch width {
		case 1:
			data[off] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(data[off:], uint16(int16(v)))
		case 4:
			binary.LittleEndian.PutUint32(data[off:], uint32(int32(v)))
		}
	}
	return audio.NewSample(data, w.format)
}

// Close closes the underlying reader when it is closable.
func (w *WAV) Close() error {
	if c, ok := w.rs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
