// Package deepgram provides a Deepgram-backed transcriber using the Deepgram
// streaming WebSocket API. It implements the [stt.Transcriber] interface.
//
// Every utterance opens its own short-lived socket: the PCM is streamed in
// chunks, a CloseStream message flushes the server, and all final Results
// received before the server closes are merged into ranked transcripts.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkBytes is 100 ms of 16 kHz mono 16-bit PCM.
	chunkBytes = 3200

	keywordBoost = 2
)

// inputFormat is what the transcriber sends as linear16.
var inputFormat = audio.Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}

var (
	_ stt.Transcriber          = (*Transcriber)(nil)
	_ stt.VocabularyRestricter = (*Transcriber)(nil)
)

// Option is a functional option for configuring the Deepgram Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(t *Transcriber) { t.language = language }
}

// WithEndpoint overrides the WebSocket endpoint. Tests point this at a local
// server.
func WithEndpoint(endpoint string) Option {
	return func(t *Transcriber) { t.endpoint = endpoint }
}

// Transcriber implements [stt.Transcriber] backed by the Deepgram streaming API.
type Transcriber struct {
	apiKey   string
	model    string
	language string
	endpoint string

	mu       sync.RWMutex
	keywords []string
}

// New creates a new Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// RestrictVocabulary sends words as boosted keywords on every following
// request. Deepgram cannot hard-limit its vocabulary.
func (t *Transcriber) RestrictVocabulary(words []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keywords = append([]string(nil), words...)
	return nil
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(ctx context.Context, sample audio.Sample, opts stt.Options) (stt.Transcripts, error) {
	if sample.IsEmpty() {
		return nil, fmt.Errorf("deepgram: empty utterance: %w", stt.ErrNoTranscription)
	}
	pcm, err := sample.Convert(inputFormat)
	if err != nil {
		return nil, fmt.Errorf("deepgram: %w", err)
	}

	wsURL, err := t.buildURL(opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	data := pcm.Bytes()
	for off := 0; off < len(data); off += chunkBytes {
		end := min(off+chunkBytes, len(data))
		if err := conn.Write(ctx, websocket.MessageBinary, data[off:end]); err != nil {
			return nil, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return nil, fmt.Errorf("deepgram: close stream: %w", err)
	}

	var finals []deepgramResponse
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if len(finals) > 0 {
				slog.Debug("deepgram: socket ended after results", "err", err)
				break
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		resp, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		if resp.Type == "Metadata" {
			break
		}
		if resp.IsFinal {
			finals = append(finals, resp)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "utterance done")

	ts := mergeFinals(finals, opts.MaxAlternatives())
	if len(ts) == 0 {
		return nil, stt.ErrNoTranscription
	}
	return ts, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for one request.
func (t *Transcriber) buildURL(opts stt.Options) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}

	lang := opts.Language
	if lang == "" {
		lang = t.language
	}

	q := u.Query()
	q.Set("model", t.model)
	q.Set("language", lang)
	q.Set("punctuate", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(inputFormat.SampleRate))
	q.Set("channels", strconv.Itoa(inputFormat.Channels))
	if n := opts.MaxAlternatives(); n > 1 {
		q.Set("alternatives", strconv.Itoa(n))
	}

	t.mu.RLock()
	for _, kw := range t.keywords {
		// Deepgram keyword format: word:boost (e.g., "mouse:2")
		q.Add("keywords", fmt.Sprintf("%s:%d", kw, keywordBoost))
	}
	t.mu.RUnlock()

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse decodes a raw message. It returns false for messages
// that are neither Results nor Metadata.
func parseDeepgramResponse(data []byte) (deepgramResponse, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return deepgramResponse{}, false
	}
	switch resp.Type {
	case "Results", "Metadata":
		return resp, true
	}
	return deepgramResponse{}, false
}

// mergeFinals concatenates the final segments of one utterance. Rank i is
// built from alternative i of every segment, falling back to the segment's
// best alternative where a segment has fewer candidates.
func mergeFinals(finals []deepgramResponse, alternatives int) stt.Transcripts {
	var out []stt.Transcript
	for rank := range alternatives {
		var (
			parts   []string
			words   []stt.WordDetail
			confSum float64
			segs    int
			found   bool
		)
		for _, f := range finals {
			alts := f.Channel.Alternatives
			if len(alts) == 0 {
				continue
			}
			idx := rank
			if idx >= len(alts) {
				idx = 0
			} else if rank > 0 {
				found = true
			}
			alt := alts[idx]
			if text := strings.TrimSpace(alt.Transcript); text != "" {
				parts = append(parts, text)
			}
			confSum += alt.Confidence
			segs++
			for _, w := range alt.Words {
				words = append(words, stt.WordDetail{
					Word:       w.Word,
					Start:      time.Duration(w.Start * float64(time.Second)),
					End:        time.Duration(w.End * float64(time.Second)),
					Confidence: w.Confidence,
				})
			}
		}
		if rank > 0 && !found {
			break
		}
		t := stt.Transcript{Text: strings.Join(parts, " "), Words: words}
		if segs > 0 {
			t.Confidence = confSum / float64(segs)
		}
		out = append(out, t)
	}
	return stt.NewTranscripts(out...)
}
