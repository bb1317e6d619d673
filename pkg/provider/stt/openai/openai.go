// Package openai provides a transcriber backed by the OpenAI audio
// transcription API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = "whisper-1"

// uploadFormat keeps uploads small; the API resamples internally anyway.
var uploadFormat = audio.Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}

var (
	_ stt.Transcriber          = (*Transcriber)(nil)
	_ stt.VocabularyRestricter = (*Transcriber)(nil)
)

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client oai.Client
	model  string

	mu     sync.RWMutex
	prompt string
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the SDK retries failed requests. Negative
// keeps the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs a new OpenAI Transcriber.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Transcriber{client: oai.NewClient(reqOpts...), model: model}, nil
}

// ModelID returns the configured model.
func (t *Transcriber) ModelID() string { return t.model }

// RestrictVocabulary passes words as the prompt of every request, which
// biases the decoder towards them.
func (t *Transcriber) RestrictVocabulary(words []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompt = strings.Join(words, " ")
	return nil
}

// Transcribe implements stt.Transcriber. The API returns a single candidate.
func (t *Transcriber) Transcribe(ctx context.Context, sample audio.Sample, opts stt.Options) (stt.Transcripts, error) {
	if sample.IsEmpty() {
		return nil, fmt.Errorf("openai stt: empty utterance: %w", stt.ErrNoTranscription)
	}
	pcm, err := sample.Convert(uploadFormat)
	if err != nil {
		return nil, fmt.Errorf("openai stt: %w", err)
	}
	wav, err := pcm.EncodeWAV()
	if err != nil {
		return nil, fmt.Errorf("openai stt: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model:          oai.AudioModel(t.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if opts.Language != "" {
		params.Language = param.NewOpt(opts.Language)
	}
	t.mu.RLock()
	if t.prompt != "" {
		params.Prompt = param.NewOpt(t.prompt)
	}
	t.mu.RUnlock()

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return parseVerbose(resp.Text, resp.RawJSON(), opts.WordTimestamps)
}

// verboseResponse holds the verbose_json fields the SDK type does not model.
type verboseResponse struct {
	Segments []struct {
		AvgLogProb float64 `json:"avg_logprob"`
	} `json:"segments"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

func parseVerbose(text, raw string, withWords bool) (stt.Transcripts, error) {
	tr := stt.Transcript{Text: text}
	var v verboseResponse
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("openai stt: parse verbose response: %w", err)
		}
	}
	if n := len(v.Segments); n > 0 {
		var sum float64
		for _, s := range v.Segments {
			sum += s.AvgLogProb
		}
		tr.Confidence = math.Exp(sum / float64(n))
	}
	if withWords {
		for _, w := range v.Words {
			tr.Words = append(tr.Words, stt.WordDetail{
				Word:  w.Word,
				Start: time.Duration(w.Start * float64(time.Second)),
				End:   time.Duration(w.End * float64(time.Second)),
			})
		}
	}
	ts := stt.NewTranscripts(tr)
	if len(ts) == 0 {
		return nil, stt.ErrNoTranscription
	}
	return ts, nil
}
