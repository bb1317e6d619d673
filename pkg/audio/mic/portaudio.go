//go:build portaudio

package mic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/murmur/pkg/audio"
)

// Source reads from a PortAudio input stream using blocking I/O.
type Source struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	format audio.Format
	closed bool
}

// Open initialises PortAudio, opens the configured input device and starts
// capturing. Close must be called to release the device.
func Open(cfg Config) (*Source, error) {
	cfg.applyDefaults()
	if cfg.Format.SampleWidth != 2 {
		return nil, fmt.Errorf("mic: only 16-bit capture is supported, got %d-byte samples", cfg.Format.SampleWidth)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialise portaudio: %w", err)
	}

	s := &Source{
		buf:    make([]int16, cfg.FramesPerBuffer*cfg.Format.Channels),
		format: cfg.Format,
	}

	var (
		stream *portaudio.Stream
		err    error
	)
	if cfg.DeviceIndex < 0 {
		stream, err = portaudio.OpenDefaultStream(cfg.Format.Channels, 0, float64(cfg.Format.SampleRate), cfg.FramesPerBuffer, s.buf)
	} else {
		var devices []*portaudio.DeviceInfo
		devices, err = portaudio.Devices()
		if err == nil && cfg.DeviceIndex >= len(devices) {
			err = fmt.Errorf("device index %d out of range (%d devices)", cfg.DeviceIndex, len(devices))
		}
		if err == nil {
			dev := devices[cfg.DeviceIndex]
			slog.Info("mic: using input device", "index", cfg.DeviceIndex, "name", dev.Name)
			params := portaudio.LowLatencyParameters(dev, nil)
			params.Input.Channels = cfg.Format.Channels
			params.SampleRate = float64(cfg.Format.SampleRate)
			params.FramesPerBuffer = cfg.FramesPerBuffer
			stream, err = portaudio.OpenStream(params, s.buf)
		}
	}
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("mic: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("mic: start stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format { return s.format }

// Read implements [audio.Source]. It blocks until frames frames have been
// captured. A live microphone never ends, so a non-positive frames value
// reads a single PortAudio buffer.
func (s *Source) Read(ctx context.Context, frames int) (audio.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audio.Empty(s.format), audio.ErrEndOfStream
	}
	perBuffer := len(s.buf) / s.format.Channels
	if frames <= 0 {
		frames = perBuffer
	}

	out := make([]int16, 0, frames*s.format.Channels)
	for len(out) < frames*s.format.Channels {
		if err := ctx.Err(); err != nil {
			return audio.Sample{}, err
		}
		if err := s.stream.Read(); err != nil {
			if err == portaudio.InputOverflowed {
				slog.Debug("mic: input overflowed")
			} else {
				return audio.Sample{}, fmt.Errorf("mic: read: %w", err)
			}
		}
		out = append(out, s.buf...)
	}
	return audio.FromInt16(out[:frames*s.format.Channels], s.format), nil
}

// Close stops capture and releases PortAudio. Subsequent reads report
// [audio.ErrEndOfStream].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stream.Stop(); err != nil {
		slog.Warn("mic: stop stream", "err", err)
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("mic: close stream: %w", err)
	}
	return portaudio.Terminate()
}
