// Package mock provides a test double for the [stt.Transcriber] interface.
//
// Transcriber replays scripted texts or transcript lists in call order and
// records every sample it was asked to transcribe.
//
// Example:
//
//	tr := &mock.Transcriber{Texts: []string{"record action", "stop recording"}}
//	text, _ := stt.TranscribeText(ctx, tr, sample) // "record action"
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// Call records a single invocation of Transcriber.Transcribe.
type Call struct {
	Sample audio.Sample
	Opts   stt.Options
}

// Transcriber is a mock implementation of [stt.Transcriber] and
// [stt.VocabularyRestricter].
type Transcriber struct {
	mu sync.Mutex

	// Results, when non-empty, are returned one per call in order.
	Results []stt.Transcripts

	// Texts are used when Results is empty: each call returns the next text
	// as a single transcript with confidence 1. An empty string is returned
	// verbatim so callers can exercise blank-text handling.
	Texts []string

	// Err, if non-nil, is returned by every call.
	Err error

	// RestrictErr, if non-nil, is returned by RestrictVocabulary.
	RestrictErr error

	calls      []Call
	vocabulary []string
}

var (
	_ stt.Transcriber          = (*Transcriber)(nil)
	_ stt.VocabularyRestricter = (*Transcriber)(nil)
)

// Transcribe records the call and returns the next scripted result. Once the
// script is exhausted it returns [stt.ErrNoTranscription].
func (m *Transcriber) Transcribe(_ context.Context, sample audio.Sample, opts stt.Options) (stt.Transcripts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.calls)
	m.calls = append(m.calls, Call{Sample: sample, Opts: opts})

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Results) > 0 {
		if idx < len(m.Results) {
			return m.Results[idx], nil
		}
		return nil, fmt.Errorf("mock: call %d: %w", idx, stt.ErrNoTranscription)
	}
	if idx < len(m.Texts) {
		return stt.Transcripts{{Text: m.Texts[idx], Confidence: 1}}, nil
	}
	return nil, fmt.Errorf("mock: call %d: %w", idx, stt.ErrNoTranscription)
}

// RestrictVocabulary records the words.
func (m *Transcriber) RestrictVocabulary(words []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vocabulary = append([]string(nil), words...)
	return m.RestrictErr
}

// Calls returns a copy of every recorded Transcribe call.
func (m *Transcriber) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Vocabulary returns the words passed to the last RestrictVocabulary call.
func (m *Transcriber) Vocabulary() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.vocabulary...)
}
