// Package whisper provides whisper.cpp-backed transcribers.
//
// [Client] talks to a running whisper-server binary, which exposes a REST API
// at POST /inference, and uploads each utterance as a WAV file. [Native]
// loads a model in-process through the whisper.cpp CGO bindings.
//
// whisper.cpp is a batch engine, which suits the utterance-at-a-time flow of
// the dispatcher: the listener has already segmented the audio, so every
// Transcribe call is exactly one inference. Neither backend produces
// alternative hypotheses; a single transcript is returned.
//
// Usage:
//
//	c, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	ts, err := c.Transcribe(ctx, utterance, stt.Options{})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

const defaultLanguage = "en"

// inputFormat is the PCM format whisper.cpp expects.
var inputFormat = audio.Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}

var (
	_ stt.Transcriber          = (*Client)(nil)
	_ stt.VocabularyRestricter = (*Client)(nil)
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en"). When empty the server uses whichever model it was
// started with; this is the default.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithHTTPClient replaces the HTTP client. Defaults to one with a 30 s
// timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client implements [stt.Transcriber] backed by a whisper.cpp HTTP server.
type Client struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client

	mu     sync.RWMutex
	prompt string
}

// New creates a Client for the whisper.cpp HTTP server at serverURL (e.g.,
// "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// RestrictVocabulary biases recognition towards words by sending them as the
// initial prompt of every request. whisper.cpp has no hard vocabulary limit.
func (c *Client) RestrictVocabulary(words []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = strings.Join(words, " ")
	return nil
}

// Transcribe implements [stt.Transcriber]. The sample is converted to 16 kHz
// mono, wrapped in a WAV container and POSTed to /inference as
// multipart/form-data.
func (c *Client) Transcribe(ctx context.Context, sample audio.Sample, opts stt.Options) (stt.Transcripts, error) {
	if sample.IsEmpty() {
		return nil, fmt.Errorf("whisper: empty utterance: %w", stt.ErrNoTranscription)
	}
	pcm, err := sample.Convert(inputFormat)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	wav, err := pcm.EncodeWAV()
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = c.language
	}
	c.mu.RLock()
	prompt := c.prompt
	c.mu.RUnlock()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        lang,
		"model":           c.model,
		"prompt":          prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	return parseInference(data, opts.WordTimestamps)
}

// inferenceResponse covers both the plain and verbose JSON shapes returned by
// whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		AvgLogProb float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func parseInference(data []byte, withTimestamps bool) (stt.Transcripts, error) {
	var r inferenceResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	t := stt.Transcript{Text: r.Text}
	var logProbSum float64
	for _, seg := range r.Segments {
		logProbSum += seg.AvgLogProb
		if withTimestamps {
			t.Words = append(t.Words, stt.WordDetail{
				Word:  strings.TrimSpace(seg.Text),
				Start: seconds(seg.Start),
				End:   seconds(seg.End),
			})
		}
	}
	if n := len(r.Segments); n > 0 && logProbSum != 0 {
		t.Confidence = math.Exp(logProbSum / float64(n))
	}

	ts := stt.NewTranscripts(t)
	if len(ts) == 0 {
		return nil, stt.ErrNoTranscription
	}
	return ts, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
