// Package audio defines the PCM sample type used throughout murmur and the
// [Source] abstraction through which audio enters the pipeline.
//
// The two primary abstractions are:
//
//   - [Sample]: an immutable buffer of interleaved PCM audio together with its
//     [Format]. Samples support slicing, concatenation, RMS energy and format
//     conversion.
//   - [Source]: a blocking, pull-based producer of samples. Implementations
//     live in sub-packages (audio/file, audio/mic) so that the CGO dependency
//     of the microphone stays out of callers that do not need it.
//
// This package lives under pkg/ because external code is expected to provide
// its own [Source] implementations.
package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrEndOfStream is returned by [Source.Read] when the source has no more
// audio to deliver. It is a normal termination condition, not a failure.
var ErrEndOfStream = errors.New("audio: end of stream")

// Source is a pull-based audio producer.
//
// Implementations must be safe for use by a single reading goroutine; the
// listener never reads from two goroutines at once.
type Source interface {
	// Read blocks until up to frames frames are available and returns them.
	// A non-positive frames value reads everything that remains.
	//
	// Read may return fewer frames than requested. When the source is
	// exhausted it returns [ErrEndOfStream] (possibly alongside no audio).
	Read(ctx context.Context, frames int) (Sample, error)

	// Format returns the format of every sample Read produces.
	Format() Format
}

// SampleSource serves an in-memory [Sample] sequentially. It is the source
// used for file decoders that load everything up front and for tests.
type SampleSource struct {
	mu     sync.Mutex
	sample Sample
	pos    int
}

var _ Source = (*SampleSource)(nil)

// NewSampleSource returns a [Source] that yields s from the beginning.
func NewSampleSource(s Sample) *SampleSource {
	return &SampleSource{sample: s}
}

// Read implements [Source].
func (s *SampleSource) Read(ctx context.Context, frames int) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.sample.NFrames()
	if s.pos >= total {
		return Empty(s.sample.format), ErrEndOfStream
	}
	end := total
	if frames > 0 {
		end = min(s.pos+frames, total)
	}
	out := s.sample.SliceFrames(s.pos, end)
	s.pos = end
	return out, nil
}

// Format implements [Source].
func (s *SampleSource) Format() Format { return s.sample.format }

// Remaining returns the number of frames not yet read.
func (s *SampleSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample.NFrames() - s.pos
}
