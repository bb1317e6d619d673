package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	sttmock "github.com/MrWong99/murmur/pkg/provider/stt/mock"
)

// plainTranscriber lacks RestrictVocabulary.
type plainTranscriber struct{ text string }

func (p plainTranscriber) Transcribe(context.Context, audio.Sample, stt.Options) (stt.Transcripts, error) {
	return stt.NewTranscripts(stt.Transcript{Text: p.text}), nil
}

func TestTranscriber_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Transcriber{Texts: []string{"stop"}}
	secondary := &sttmock.Transcriber{Texts: []string{"other"}}
	tr := NewTranscriber(primary, "primary", FallbackConfig{})
	tr.AddFallback("secondary", secondary)

	text, err := stt.TranscribeText(context.Background(), tr, audio.Empty(audio.DefaultFormat))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "stop" {
		t.Errorf("text = %q, want stop", text)
	}
	if len(secondary.Calls()) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestTranscriber_Failover(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Transcriber{Err: errors.New("connection refused")}
	secondary := &sttmock.Transcriber{Texts: []string{"wake up"}}
	tr := NewTranscriber(primary, "primary", FallbackConfig{})
	tr.AddFallback("secondary", secondary)

	text, err := stt.TranscribeText(context.Background(), tr, audio.Empty(audio.DefaultFormat))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "wake up" {
		t.Errorf("text = %q, want wake up", text)
	}
}

func TestTranscriber_NoTranscriptionIsNotAFault(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Transcriber{}
	secondary := &sttmock.Transcriber{Texts: []string{"never"}}
	tr := NewTranscriber(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	tr.AddFallback("secondary", secondary)

	for range 3 {
		_, err := tr.Transcribe(context.Background(), audio.Empty(audio.DefaultFormat), stt.Options{})
		if !errors.Is(err, stt.ErrNoTranscription) {
			t.Fatalf("err = %v, want ErrNoTranscription", err)
		}
	}
	if len(secondary.Calls()) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.Calls()))
	}
	if s := tr.Status()[0].State; s != StateClosed {
		t.Errorf("primary state = %v, want closed", s)
	}
}

func TestTranscriber_AllFail(t *testing.T) {
	t.Parallel()
	tr := NewTranscriber(&sttmock.Transcriber{Err: errTest}, "a", FallbackConfig{})
	tr.AddFallback("b", &sttmock.Transcriber{Err: errTest})

	_, err := tr.Transcribe(context.Background(), audio.Empty(audio.DefaultFormat), stt.Options{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranscriber_RestrictVocabulary(t *testing.T) {
	t.Parallel()
	restricting := &sttmock.Transcriber{}
	failing := &sttmock.Transcriber{RestrictErr: errTest}
	unsupported := &sttmock.Transcriber{RestrictErr: stt.ErrNotSupported}
	tr := NewTranscriber(restricting, "a", FallbackConfig{})
	tr.AddFallback("plain", plainTranscriber{text: "x"})
	tr.AddFallback("unsupported", unsupported)
	tr.AddFallback("failing", failing)

	err := tr.RestrictVocabulary([]string{"mouse", "left"})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want the failing backend's error", err)
	}
	if got := restricting.Vocabulary(); len(got) != 2 || got[0] != "mouse" {
		t.Errorf("vocabulary = %v, want [mouse left]", got)
	}
}
