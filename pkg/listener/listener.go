package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/murmur/pkg/audio"
)

// DefaultChunkSize is the number of frames read from the source per label
// decision (2^14, roughly one second at 16 kHz).
const DefaultChunkSize = 1 << 14

// Filter transforms a single sample. Used for per-chunk pre-filters and the
// final post-filter.
type Filter func(audio.Sample) audio.Sample

// FrameFilter selects which labelled frames make up the utterance.
type FrameFilter func(frames []AnnotatedFrame) []AnnotatedFrame

// Joiner combines the selected frames into one sample.
type Joiner func(frames []AnnotatedFrame) (audio.Sample, error)

// StopFramePolicy decides whether the frame that ended the utterance is kept
// in the frame sequence handed to the [FrameFilter].
type StopFramePolicy int

const (
	// StopFrameInclude appends the Stop frame to the sequence. With
	// [KeepSpeech] it becomes the single trailing frame after speech.
	StopFrameInclude StopFramePolicy = iota

	// StopFrameExclude discards the Stop frame.
	StopFrameExclude
)

// Option configures a [Listener].
type Option func(*Listener)

// WithChunkSize sets how many frames are read per label decision.
func WithChunkSize(frames int) Option {
	return func(l *Listener) {
		if frames > 0 {
			l.chunkSize = frames
		}
	}
}

// WithPreFilter sets the filter applied to each chunk before it is labelled,
// e.g. [RemoveDCOffset].
func WithPreFilter(f Filter) Option {
	return func(l *Listener) { l.pre = f }
}

// WithFrameFilter replaces the default [KeepSpeech] frame selection.
func WithFrameFilter(f FrameFilter) Option {
	return func(l *Listener) { l.filter = f }
}

// WithJoiner replaces the default concatenation of the selected frames.
func WithJoiner(j Joiner) Option {
	return func(l *Listener) { l.join = j }
}

// WithPostFilter sets the filter applied to the joined utterance.
func WithPostFilter(f Filter) Option {
	return func(l *Listener) { l.post = f }
}

// WithStopFrame sets the stop-frame policy. The default is
// [StopFrameInclude].
func WithStopFrame(p StopFramePolicy) Option {
	return func(l *Listener) { l.stopFrame = p }
}

// Listener turns a stream of audio into discrete utterances.
//
// Listen is not safe for concurrent use: the source is read sequentially.
type Listener struct {
	source    audio.Source
	labeler   Labeler
	chunkSize int
	pre       Filter
	filter    FrameFilter
	join      Joiner
	post      Filter
	stopFrame StopFramePolicy
}

// New creates a listener reading from source and labelling chunks with
// labeler.
func New(source audio.Source, labeler Labeler, opts ...Option) *Listener {
	l := &Listener{
		source:    source,
		labeler:   labeler,
		chunkSize: DefaultChunkSize,
		pre:       Identity,
		filter:    KeepSpeech,
		post:      Identity,
	}
	l.join = func(frames []AnnotatedFrame) (audio.Sample, error) {
		return JoinFrames(source.Format(), frames)
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Source returns the audio source the listener reads from.
func (l *Listener) Source() audio.Source { return l.source }

// ListenFrames reads and labels chunks until the labeler reports [Stop] or
// the source reports [audio.ErrEndOfStream]. End of stream always ends the
// utterance; if it arrives before any frame was gathered it is returned to
// the caller.
func (l *Listener) ListenFrames(ctx context.Context) ([]AnnotatedFrame, error) {
	var frames []AnnotatedFrame
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := l.source.Read(ctx, l.chunkSize)
		eos := errors.Is(err, audio.ErrEndOfStream)
		if err != nil && !eos {
			return nil, fmt.Errorf("listener: read: %w", err)
		}

		if !chunk.IsEmpty() || !eos {
			chunk = l.pre(chunk)
			// A capped slice keeps labelers from appending into our buffer.
			state := l.labeler.Label(chunk, frames[:len(frames):len(frames)])
			if state != Stop || l.stopFrame == StopFrameInclude {
				frames = append(frames, AnnotatedFrame{Frame: chunk, State: state})
			}
			if state == Stop {
				return frames, nil
			}
		}

		if eos {
			if len(frames) == 0 {
				return nil, audio.ErrEndOfStream
			}
			slog.Debug("listener: source ended mid-utterance", "frames", len(frames))
			return frames, nil
		}
	}
}

// Listen captures one utterance: frames are gathered with ListenFrames,
// selected with the frame filter, joined and finally post-filtered.
func (l *Listener) Listen(ctx context.Context) (audio.Sample, error) {
	frames, err := l.ListenFrames(ctx)
	if err != nil {
		return audio.Sample{}, err
	}
	kept := l.filter(frames)
	joined, err := l.join(kept)
	if err != nil {
		return audio.Sample{}, fmt.Errorf("listener: join: %w", err)
	}
	slog.Debug("listener: utterance captured",
		"frames", len(frames),
		"kept", len(kept),
		"duration", joined.Duration(),
	)
	return l.post(joined), nil
}

// Identity returns s unchanged.
func Identity(s audio.Sample) audio.Sample { return s }

// RemoveDCOffset is a pre-filter that centres each chunk on zero.
func RemoveDCOffset(s audio.Sample) audio.Sample { return s.RemoveDCOffset() }

// KeepSpeech keeps every Listen frame plus the one frame directly after a
// Listen frame. Leading silence is dropped and exactly one trailing frame is
// preserved so the end of the last word is not clipped. Use
// [KeepSpeechLeadIn] to also keep the silent frame just before speech.
func KeepSpeech(frames []AnnotatedFrame) []AnnotatedFrame {
	var kept []AnnotatedFrame
	for i, f := range frames {
		if f.State == Listen || (i > 0 && frames[i-1].State == Listen) {
			kept = append(kept, f)
		}
	}
	return kept
}

// KeepSpeechLeadIn behaves like [KeepSpeech] and additionally keeps the one
// frame directly before each run of Listen frames, so the attack of the first
// word survives when speech starts late in a chunk.
func KeepSpeechLeadIn(frames []AnnotatedFrame) []AnnotatedFrame {
	var kept []AnnotatedFrame
	for i, f := range frames {
		prev := i > 0 && frames[i-1].State == Listen
		next := i+1 < len(frames) && frames[i+1].State == Listen
		if f.State == Listen || prev || next {
			kept = append(kept, f)
		}
	}
	return kept
}

// JoinFrames concatenates frame audio in order. With no frames it returns an
// empty sample in format.
func JoinFrames(format audio.Format, frames []AnnotatedFrame) (audio.Sample, error) {
	if len(frames) == 0 {
		return audio.Empty(format), nil
	}
	samples := make([]audio.Sample, len(frames))
	for i, f := range frames {
		samples[i] = f.Frame
	}
	return audio.Join(samples...)
}
