// Package dispatch routes transcribed utterances through an ordered chain of
// actions.
//
// Each registered [Action] is offered the text in registration order until
// one claims it. An action that answers [ProcessFutureText] takes sticky
// focus: it is offered the next text before anyone else and keeps focus until
// it answers [TextProcessed] or declines a text that another action then
// claims.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ProcessResult is an action's answer to one offered text.
type ProcessResult int

const (
	// TextNotProcessed declines the text; the next action is asked.
	TextNotProcessed ProcessResult = iota

	// TextProcessed consumes the text and releases focus.
	TextProcessed

	// ProcessFutureText consumes the text and claims the next one too.
	ProcessFutureText
)

// String returns the canonical upper-case name.
func (r ProcessResult) String() string {
	switch r {
	case TextNotProcessed:
		return "TEXT_NOT_PROCESSED"
	case TextProcessed:
		return "TEXT_PROCESSED"
	case ProcessFutureText:
		return "PROCESS_FUTURE_TEXT"
	default:
		return fmt.Sprintf("ProcessResult(%d)", int(r))
	}
}

// MarshalText encodes the result by name, which is how session logs store it.
func (r ProcessResult) MarshalText() ([]byte, error) {
	switch r {
	case TextNotProcessed, TextProcessed, ProcessFutureText:
		return []byte(r.String()), nil
	}
	return nil, fmt.Errorf("dispatch: invalid process result %d", int(r))
}

// UnmarshalText decodes a name produced by MarshalText.
func (r *ProcessResult) UnmarshalText(b []byte) error {
	switch string(b) {
	case "TEXT_NOT_PROCESSED":
		*r = TextNotProcessed
	case "TEXT_PROCESSED":
		*r = TextProcessed
	case "PROCESS_FUTURE_TEXT":
		*r = ProcessFutureText
	default:
		return fmt.Errorf("dispatch: unknown process result %q", b)
	}
	return nil
}

// Result is what [Action.Act] returns.
type Result struct {
	Process ProcessResult

	// RecordingData describes what the action did, for session recordings.
	// It is only filled when [RecordingRequested] reports true and must be
	// JSON-encodable.
	RecordingData any
}

// Processed is shorthand for a TextProcessed result.
func Processed() Result { return Result{Process: TextProcessed} }

// NotProcessed is shorthand for a TextNotProcessed result.
func NotProcessed() Result { return Result{Process: TextNotProcessed} }

// ProcessFuture is shorthand for a ProcessFutureText result.
func ProcessFuture() Result { return Result{Process: ProcessFutureText} }

// WithRecordingData returns a copy of r carrying v.
func (r Result) WithRecordingData(v any) Result {
	r.RecordingData = v
	return r
}

// Action handles transcribed text.
//
// Act must return TextNotProcessed without side effects when the action is
// disabled. Errors returned by Act are not contained by the dispatcher; an
// action that merely did not understand the text declines it instead.
type Action interface {
	Name() string
	Enabled() bool

	// RecognizedWords lists the vocabulary the action reacts to. It is
	// handed to engines that can bias recognition and plays no part in
	// routing.
	RecognizedWords() []string

	Act(ctx context.Context, text string) (Result, error)
}

// Base carries the name and enabled flag every action needs. Embed a *Base
// created by [NewBase].
type Base struct {
	name     string
	disabled atomic.Bool
}

// NewBase returns an enabled Base.
func NewBase(name string) *Base { return &Base{name: name} }

// Name returns the action name.
func (b *Base) Name() string { return b.name }

// Enabled reports whether the action accepts text.
func (b *Base) Enabled() bool { return !b.disabled.Load() }

// SetEnabled switches the action on or off. Safe for concurrent use.
func (b *Base) SetEnabled(enabled bool) { b.disabled.Store(!enabled) }

type recordingKey struct{}

// WithRecording marks ctx so that actions attach [Result.RecordingData].
func WithRecording(ctx context.Context) context.Context {
	return context.WithValue(ctx, recordingKey{}, true)
}

// RecordingRequested reports whether the caller wants recording data.
func RecordingRequested(ctx context.Context) bool {
	v, _ := ctx.Value(recordingKey{}).(bool)
	return v
}
