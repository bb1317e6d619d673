// Package mouse provides a voice-driven pointer action.
//
// The grammar, matched case-insensitively against the whole utterance:
//
//	move mouse (left|right|up|down) [[very] (fast|slow)]
//	stop mouse
//	[single|double|triple] [(left|right|middle)(-| )]mouse click
//
// Screen automation is rarely safe to call from several threads, so the
// [Action] never touches the [Screen] itself. It sends immutable [Command]
// values to a [Worker], a single goroutine that owns the screen.
package mouse

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MrWong99/murmur/internal/dispatch"
)

// Name is the action name the mouse action registers under.
const Name = "mouse"

// Pointer speeds in pixels per second.
const (
	SpeedNormal = 367.0
	SpeedFast   = 734.0
)

var speeds = map[string]float64{
	"":          SpeedNormal,
	"fast":      SpeedFast,
	"very fast": 2 * SpeedFast,
	"slow":      SpeedNormal / 2,
	"very slow": SpeedNormal / 4,
}

var (
	moveRe  = regexp.MustCompile(`(?i)^move mouse (left|right|up|down)(?: ((?:very )?(?:fast|slow)))?$`)
	stopRe  = regexp.MustCompile(`(?i)^stop mouse$`)
	clickRe = regexp.MustCompile(`(?i)^(?:(single|double|triple) )?(?:(left|right|middle)[- ])?mouse click$`)
)

var clickCounts = map[string]int{"": 1, "single": 1, "double": 2, "triple": 3}

// Kind names a parsed request.
type Kind string

const (
	KindMove  Kind = "move"
	KindStop  Kind = "stop"
	KindClick Kind = "click"
)

// Request is a parsed utterance.
type Request struct {
	Kind Kind

	// Move
	Direction Direction
	Modifier  string // "", "fast", "very fast", "slow", "very slow"

	// Click
	Button Button
	Count  int
}

// Parse matches text against the grammar.
func Parse(text string) (Request, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if m := moveRe.FindStringSubmatch(text); m != nil {
		return Request{
			Kind:      KindMove,
			Direction: Direction(strings.ToLower(m[1])),
			Modifier:  strings.ToLower(m[2]),
		}, true
	}
	if stopRe.MatchString(text) {
		return Request{Kind: KindStop}, true
	}
	if m := clickRe.FindStringSubmatch(text); m != nil {
		b := Button(strings.ToLower(m[2]))
		if b == "" {
			b = ButtonLeft
		}
		return Request{
			Kind:   KindClick,
			Button: b,
			Count:  clickCounts[strings.ToLower(m[1])],
		}, true
	}
	return Request{}, false
}

// Speed returns the pointer speed for a move request.
func (r Request) Speed() float64 { return speeds[r.Modifier] }

// Parameters lists the request's arguments the way session recordings
// store them.
func (r Request) Parameters() []any {
	switch r.Kind {
	case KindMove:
		var mod any
		if r.Modifier != "" {
			mod = r.Modifier
		}
		return []any{string(r.Direction), mod}
	case KindClick:
		return []any{string(r.Button), r.Count}
	}
	return []any{}
}

// Command converts the request into a worker message.
func (r Request) Command() Command {
	switch r.Kind {
	case KindMove:
		return Move{Direction: r.Direction, Speed: r.Speed()}
	case KindClick:
		return Click{Button: r.Button, Count: r.Count}
	}
	return Halt{}
}

// RecordingData is attached to results when a recording is requested.
type RecordingData struct {
	Action        Kind     `json:"action"`
	Parameters    []any    `json:"parameters"`
	MousePosition *Point   `json:"mouse_position"`
	Speed         *float64 `json:"speed,omitempty"`
}

// Controller accepts pointer commands. [*Worker] implements it.
type Controller interface {
	Send(ctx context.Context, cmd Command) error
	Position(ctx context.Context) (Point, error)
}

var _ Controller = (*Worker)(nil)

// Action is the [dispatch.Action] for the pointer grammar.
type Action struct {
	*dispatch.Base
	ctl Controller
}

var _ dispatch.Action = (*Action)(nil)

// New returns an enabled Action sending commands to ctl.
func New(ctl Controller) *Action {
	return &Action{Base: dispatch.NewBase(Name), ctl: ctl}
}

// RecognizedWords implements [dispatch.Action].
func (a *Action) RecognizedWords() []string {
	return []string{
		"click", "double", "down", "fast", "left", "middle", "mouse", "move",
		"right", "single", "slow", "stop", "triple", "up", "very",
	}
}

// Act parses text and forwards the command to the worker. A worker failure
// is logged and the text declined.
func (a *Action) Act(ctx context.Context, text string) (dispatch.Result, error) {
	if !a.Enabled() {
		return dispatch.NotProcessed(), nil
	}
	req, ok := Parse(text)
	if !ok {
		return dispatch.NotProcessed(), nil
	}

	var data *RecordingData
	if dispatch.RecordingRequested(ctx) {
		data = &RecordingData{Action: req.Kind, Parameters: req.Parameters()}
		if p, err := a.ctl.Position(ctx); err == nil {
			data.MousePosition = &p
		} else {
			slog.Warn("mouse: position unavailable for recording", "err", err)
		}
		if req.Kind == KindMove {
			s := req.Speed()
			data.Speed = &s
		}
	}

	if err := a.ctl.Send(ctx, req.Command()); err != nil {
		slog.Warn("mouse: command not delivered", "text", text, "err", err)
		return dispatch.NotProcessed(), nil
	}
	slog.Debug("mouse: command sent", "kind", req.Kind, "parameters", req.Parameters())

	res := dispatch.Processed()
	if data != nil {
		res = res.WithRecordingData(data)
	}
	return res, nil
}
