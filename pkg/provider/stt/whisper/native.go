// This file contains the Native transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

var (
	_ stt.Transcriber          = (*Native)(nil)
	_ stt.VocabularyRestricter = (*Native)(nil)
)

// Native implements [stt.Transcriber] using the whisper.cpp Go bindings,
// eliminating HTTP overhead. The model is loaded once and shared; each
// Transcribe call creates its own inference context.
type Native struct {
	model    whisperlib.Model
	language string

	mu     sync.RWMutex
	prompt string
}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeLanguage sets the language code for transcription. Defaults to
// "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the transcriber is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	n := &Native{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// RestrictVocabulary sets the initial prompt used for every inference so the
// decoder favours the given words.
func (n *Native) RestrictVocabulary(words []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prompt = strings.Join(words, " ")
	return nil
}

// Transcribe implements [stt.Transcriber]. Confidence is the mean token
// probability reported by whisper.cpp.
func (n *Native) Transcribe(ctx context.Context, sample audio.Sample, opts stt.Options) (stt.Transcripts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sample.IsEmpty() {
		return nil, fmt.Errorf("whisper: empty utterance: %w", stt.ErrNoTranscription)
	}
	pcm, err := sample.Convert(inputFormat)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	// Contexts are not thread-safe but the model can be shared.
	wctx, err := n.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = n.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	n.mu.RLock()
	prompt := n.prompt
	n.mu.RUnlock()
	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}
	wctx.SetTokenTimestamps(opts.WordTimestamps)

	if err := wctx.Process(pcm.Float32Mono(), nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts   []string
		words   []stt.WordDetail
		probSum float64
		tokens  int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		for _, tok := range segment.Tokens {
			probSum += float64(tok.P)
			tokens++
		}
		if opts.WordTimestamps {
			words = append(words, stt.WordDetail{Word: text, Start: segment.Start, End: segment.End})
		}
	}

	t := stt.Transcript{Text: strings.Join(parts, " "), Words: words}
	if tokens > 0 {
		t.Confidence = probSum / float64(tokens)
	}
	ts := stt.NewTranscripts(t)
	if len(ts) == 0 {
		return nil, stt.ErrNoTranscription
	}
	return ts, nil
}
