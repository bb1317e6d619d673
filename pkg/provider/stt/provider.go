// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A Transcriber turns one finished utterance (an [audio.Sample] produced by
// the listener) into a ranked list of candidate transcripts. Backends wrap a
// local whisper.cpp model, a whisper-server over HTTP, Deepgram over
// WebSocket or the OpenAI audio API; all of them expose the same batch
// interface so the dispatcher can swap them at runtime (e.g. for a
// wake-word-only engine while asleep).
//
// Implementations must be safe for concurrent use.
package stt

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
)

var (
	// ErrNoTranscription is returned when the engine produced no usable text
	// for an utterance.
	ErrNoTranscription = errors.New("stt: no transcription")

	// ErrNotSupported is returned by optional capabilities a backend lacks.
	ErrNotSupported = errors.New("stt: not supported")
)

// Options tunes a single Transcribe call.
type Options struct {
	// Alternatives is the maximum number of candidate transcripts to return.
	// Zero means one. Engines that cannot produce alternatives return one.
	Alternatives int

	// WordTimestamps requests per-word timing in [Transcript.Words].
	WordTimestamps bool

	// Language is a BCP-47 language hint. Empty uses the engine default.
	Language string
}

// MaxAlternatives returns the effective alternative count (at least one).
func (o Options) MaxAlternatives() int { return max(o.Alternatives, 1) }

// Transcriber converts a complete utterance into ranked transcripts.
type Transcriber interface {
	// Transcribe returns candidates sorted by descending confidence. It
	// returns [ErrNoTranscription] (possibly wrapped) when nothing was
	// recognised.
	Transcribe(ctx context.Context, sample audio.Sample, opts Options) (Transcripts, error)
}

// VocabularyRestricter is implemented by engines that can bias or limit
// recognition to a known set of words. The dispatcher feeds it the union of
// every registered action's recognised words.
type VocabularyRestricter interface {
	RestrictVocabulary(words []string) error
}

// Transcript is one candidate transcription of an utterance.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the engine's score in [0, 1]. Zero when the engine does
	// not report confidence.
	Confidence float64

	// Words holds per-word or per-segment timing when requested and
	// supported. Nil otherwise.
	Words []WordDetail
}

// WordDetail holds timing for one word or segment of a transcript.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Transcripts is a list of candidates ordered best first.
type Transcripts []Transcript

// NewTranscripts sorts ts by descending confidence (stable, so engines that
// do not score keep their own order) and drops candidates with empty text.
func NewTranscripts(ts ...Transcript) Transcripts {
	out := make(Transcripts, 0, len(ts))
	for _, t := range ts {
		t.Text = strings.TrimSpace(t.Text)
		if t.Text != "" {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b Transcript) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return out
}

// Best returns the highest-ranked transcript or [ErrNoTranscription].
func (ts Transcripts) Best() (Transcript, error) {
	if len(ts) == 0 {
		return Transcript{}, ErrNoTranscription
	}
	return ts[0], nil
}

// Texts returns the text of every candidate in rank order.
func (ts Transcripts) Texts() []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Text
	}
	return out
}

// TranscribeText is a convenience wrapper returning only the best text.
func TranscribeText(ctx context.Context, t Transcriber, sample audio.Sample) (string, error) {
	ts, err := t.Transcribe(ctx, sample, Options{Alternatives: 1})
	if err != nil {
		return "", err
	}
	best, err := ts.Best()
	if err != nil {
		return "", err
	}
	return best.Text, nil
}
