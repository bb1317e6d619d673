// Package mock provides an in-memory mock implementation of [audio.Source]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every Read call so that
// tests can assert on call counts and requested sizes, and it exposes
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{
//	    SourceFormat: audio.DefaultFormat,
//	    Frames:       []audio.Sample{quiet, loud, quiet},
//	}
//	l := listener.New(src, listener.SilenceBased{ThresholdRMS: 500})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/pkg/audio"
)

// Source is a mock implementation of [audio.Source] that replays a scripted
// list of frames and then reports end of stream.
type Source struct {
	mu sync.Mutex

	// SourceFormat is returned by Format.
	SourceFormat audio.Format

	// Frames are returned one per Read call, in order, regardless of the
	// requested size.
	Frames []audio.Sample

	// Errors, when non-nil at the same index as a Read call, is returned
	// instead of the frame for that call.
	Errors []error

	// Block, when non-nil, makes Read wait for a value (or context
	// cancellation) before returning each frame.
	Block chan struct{}

	// ReadRequests records the frames argument of every Read call.
	ReadRequests []int

	pos int
}

var _ audio.Source = (*Source)(nil)

// Read implements [audio.Source].
func (s *Source) Read(ctx context.Context, frames int) (audio.Sample, error) {
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return audio.Sample{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.ReadRequests)
	s.ReadRequests = append(s.ReadRequests, frames)
	if call < len(s.Errors) && s.Errors[call] != nil {
		return audio.Sample{}, s.Errors[call]
	}
	if s.pos >= len(s.Frames) {
		return audio.Empty(s.SourceFormat), audio.ErrEndOfStream
	}
	f := s.Frames[s.pos]
	s.pos++
	return f, nil
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SourceFormat
}

// CallCount returns the number of Read calls made so far.
func (s *Source) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ReadRequests)
}

// Tone returns a square-wave 16-bit mono sample whose RMS equals amplitude.
// Tests use it to build frames that sit above or below an energy threshold.
func Tone(amplitude int16, frames int, format audio.Format) audio.Sample {
	format.Channels = 1
	vals := make([]int16, frames)
	for i := range vals {
		if i%2 == 0 {
			vals[i] = amplitude
		} else {
			vals[i] = -amplitude
		}
	}
	return audio.FromInt16(vals, format)
}
