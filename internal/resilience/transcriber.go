package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

var (
	_ stt.Transcriber          = (*Transcriber)(nil)
	_ stt.VocabularyRestricter = (*Transcriber)(nil)
)

// Transcriber implements [stt.Transcriber] with failover across several
// backends, each behind its own circuit breaker.
//
// An utterance that a healthy backend could not recognise
// ([stt.ErrNoTranscription]) is not a backend fault: it neither trips the
// breaker nor moves on to the next backend. Context cancellation ends the
// attempt as well.
type Transcriber struct {
	group *FallbackGroup[stt.Transcriber]
}

// NewTranscriber creates a [Transcriber] with primary as the preferred backend.
func NewTranscriber(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *Transcriber {
	isFailure := cfg.CircuitBreaker.IsFailure
	cfg.CircuitBreaker.IsFailure = func(err error) bool {
		if err == nil || isBenign(err) {
			return false
		}
		return isFailure == nil || isFailure(err)
	}
	final := cfg.Final
	cfg.Final = func(err error) bool {
		return isBenign(err) || (final != nil && final(err))
	}
	return &Transcriber{group: NewFallbackGroup(primary, primaryName, cfg)}
}

func isBenign(err error) bool {
	return errors.Is(err, stt.ErrNoTranscription) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// AddFallback registers an additional backend.
func (t *Transcriber) AddFallback(name string, backend stt.Transcriber) {
	t.group.AddFallback(name, backend)
}

// Status reports the breaker state of every backend.
func (t *Transcriber) Status() []EntryStatus { return t.group.Status() }

// Transcribe tries each healthy backend in order.
func (t *Transcriber) Transcribe(ctx context.Context, sample audio.Sample, opts stt.Options) (stt.Transcripts, error) {
	return ExecuteWithResult(t.group, func(b stt.Transcriber) (stt.Transcripts, error) {
		return b.Transcribe(ctx, sample, opts)
	})
}

// RestrictVocabulary forwards words to every backend that supports it.
// Backends without the capability are skipped.
func (t *Transcriber) RestrictVocabulary(words []string) error {
	var errs []error
	t.group.Each(func(name string, b stt.Transcriber) {
		vr, ok := b.(stt.VocabularyRestricter)
		if !ok {
			return
		}
		if err := vr.RestrictVocabulary(words); err != nil && !errors.Is(err, stt.ErrNotSupported) {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	})
	return errors.Join(errs...)
}
