// Package recorder provides an action that records what the other actions do
// with a sequence of utterances and writes the session to a JSON file.
//
// "record action" starts a session and claims sticky focus. While recording,
// every utterance is delegated to the rest of the action chain with
// recording data requested, and the outcome is appended to the session.
// "stop recording" writes the session to <dir>/<timestamp>.json and releases
// focus. If the write fails the session stays open and focus is kept.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/murmur/internal/dispatch"
)

// Name is the action name the recorder registers under.
const Name = "recorder"

const (
	startPhrase = "record action"
	stopPhrase  = "stop recording"

	// FileTimeLayout names session files. It avoids ':' so the names are
	// valid on every file system.
	FileTimeLayout = "2006-01-02T15-04-05.000000"
)

// Dispatcher is the re-entrant routing the recorder delegates to.
type Dispatcher interface {
	DispatchExcluding(ctx context.Context, text string, exclude ...dispatch.Action) (dispatch.Action, dispatch.Result, error)
}

var _ Dispatcher = (*dispatch.Dispatcher)(nil)

// Entry is one recorded utterance.
type Entry struct {
	Time          time.Time              `json:"time"`
	Text          string                 `json:"text"`
	Action        *string                `json:"action"`
	ProcessResult dispatch.ProcessResult `json:"process_result"`
	RecordingData any                    `json:"recording_data"`
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithFs sets the file system sessions are written to. Defaults to the OS
// file system.
func WithFs(fs afero.Fs) Option {
	return func(r *Recorder) { r.fs = fs }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder is a stateful [dispatch.Action]. It is safe for concurrent use,
// but a session is a single ordered sequence: utterances are expected from
// one dispatcher loop.
type Recorder struct {
	*dispatch.Base

	d   Dispatcher
	dir string
	fs  afero.Fs
	now func() time.Time

	mu        sync.Mutex
	recording bool
	entries   []Entry
	last      string
}

var _ dispatch.Action = (*Recorder)(nil)

// New returns a Recorder that delegates through d and saves sessions in dir.
func New(d Dispatcher, dir string, opts ...Option) *Recorder {
	r := &Recorder{
		Base: dispatch.NewBase(Name),
		d:    d,
		dir:  dir,
		fs:   afero.NewOsFs(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RecognizedWords implements [dispatch.Action].
func (r *Recorder) RecognizedWords() []string {
	return []string{"action", "record", "recording", "stop"}
}

// Recording reports whether a session is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Entries returns the entries of the open session.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// LastSession returns the path of the most recently written session file.
func (r *Recorder) LastSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Act implements [dispatch.Action].
func (r *Recorder) Act(ctx context.Context, text string) (dispatch.Result, error) {
	if !r.Enabled() {
		return dispatch.NotProcessed(), nil
	}
	phrase := strings.ToLower(strings.TrimSpace(text))

	r.mu.Lock()
	recording := r.recording
	switch {
	case !recording && phrase == startPhrase:
		r.recording = true
		r.entries = []Entry{}
		r.mu.Unlock()
		slog.Info("recorder: session started")
		return dispatch.ProcessFuture(), nil
	case !recording:
		r.mu.Unlock()
		return dispatch.NotProcessed(), nil
	case phrase == stopPhrase:
		entries := r.entries
		r.mu.Unlock()
		path, err := r.save(entries)
		if err != nil {
			// Keep the session and the focus; "stop recording" may be retried.
			slog.Error("recorder: failed to save session", "dir", r.dir, "entries", len(entries), "err", err)
			return dispatch.ProcessFuture(), nil
		}
		r.mu.Lock()
		r.recording = false
		r.entries = nil
		r.last = path
		r.mu.Unlock()
		slog.Info("recorder: session saved", "path", path, "entries", len(entries))
		return dispatch.Processed(), nil
	}
	r.mu.Unlock()

	if err := r.delegate(ctx, text); err != nil {
		return dispatch.NotProcessed(), err
	}
	return dispatch.ProcessFuture(), nil
}

// delegate offers text to every other action and appends the outcome.
func (r *Recorder) delegate(ctx context.Context, text string) error {
	at := r.now()
	a, res, err := r.d.DispatchExcluding(dispatch.WithRecording(ctx), text, r)
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	e := Entry{
		Time:          at,
		Text:          text,
		ProcessResult: res.Process,
		RecordingData: res.RecordingData,
	}
	name := "<none>"
	if a != nil {
		name = a.Name()
		e.Action = &name
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	slog.Debug("recorder: recorded", "text", text, "action", name, "result", res.Process)
	return nil
}

func (r *Recorder) save(entries []Entry) (string, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("recorder: encode session: %w", err)
	}
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("recorder: create %s: %w", r.dir, err)
	}
	path := filepath.Join(r.dir, r.now().Format(FileTimeLayout)+".json")
	if err := afero.WriteFile(r.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("recorder: write session: %w", err)
	}
	return path, nil
}

// Load reads a session file written by a Recorder.
func Load(fs afero.Fs, path string) ([]Entry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("recorder: read session: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("recorder: decode %s: %w", path, err)
	}
	return entries, nil
}
