package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// Listener is the utterance queue the dispatcher drains.
// [*listener.Background] implements it.
type Listener interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) bool
	IsListening() bool
	Empty() bool
	Len() int

	// Get blocks for the next utterance. It returns an error once the
	// listener has stopped and nothing is left to consume.
	Get(ctx context.Context) (audio.Sample, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records dispatch metrics into m. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTranscribeOptions sets the options passed to every Transcribe call.
func WithTranscribeOptions(opts stt.Options) Option {
	return func(d *Dispatcher) { d.sttOpts = opts }
}

// WithStopTimeout bounds how long a listener swap waits for the old listener
// to finish its utterance. Defaults to 2s.
func WithStopTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.stopTimeout = timeout }
}

// Dispatcher owns the action chain, the sticky focus, and the current
// listener and transcriber. Listener and transcriber can be swapped while
// [Dispatcher.Run] is active.
//
// Dispatch and DispatchExcluding may be called from within an action's Act;
// the dispatcher holds no lock while actions run.
type Dispatcher struct {
	metrics     *observe.Metrics
	sttOpts     stt.Options
	stopTimeout time.Duration

	mu          sync.RWMutex
	actions     []Action
	focus       Action
	listener    Listener
	transcriber stt.Transcriber
	counted     bool // listener is reflected in the listening gauge
}

// New creates a Dispatcher. Either argument may be nil and set later.
func New(l Listener, t stt.Transcriber, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		listener:    l,
		transcriber: t,
		stopTimeout: 2 * time.Second,
		sttOpts:     stt.Options{Alternatives: 1},
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// RegisterAction appends a to the chain. Earlier registrations are offered
// text first.
func (d *Dispatcher) RegisterAction(a Action) {
	d.mu.Lock()
	d.actions = append(d.actions, a)
	t := d.transcriber
	words := d.vocabularyLocked()
	d.mu.Unlock()
	slog.Debug("dispatch: action registered", "action", a.Name())
	pushVocabulary(t, words)
}

// Actions returns the registered actions in offer order.
func (d *Dispatcher) Actions() []Action {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.actions)
}

// Action returns the registered action called name.
func (d *Dispatcher) Action(name string) (Action, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.actions {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Focus returns the action holding sticky focus, or nil.
func (d *Dispatcher) Focus() Action {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.focus
}

func (d *Dispatcher) setFocus(ctx context.Context, a Action) {
	d.mu.Lock()
	prev := d.focus
	d.focus = a
	d.mu.Unlock()
	if prev == a {
		return
	}
	name := ""
	if a != nil {
		name = a.Name()
	}
	d.metrics.FocusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("action", name)))
	observe.Logger(ctx).Debug("dispatch: focus changed", "action", name)
}

// Transcriber returns the current speech engine.
func (d *Dispatcher) Transcriber() stt.Transcriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.transcriber
}

// SetTranscriber swaps the speech engine. The next utterance is transcribed
// with t. The registered vocabulary is pushed to t if it supports it.
func (d *Dispatcher) SetTranscriber(t stt.Transcriber) {
	d.mu.Lock()
	d.transcriber = t
	words := d.vocabularyLocked()
	d.mu.Unlock()
	pushVocabulary(t, words)
}

// Vocabulary returns the sorted union of every action's recognised words.
func (d *Dispatcher) Vocabulary() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.vocabularyLocked()
}

func (d *Dispatcher) vocabularyLocked() []string {
	var words []string
	for _, a := range d.actions {
		words = append(words, a.RecognizedWords()...)
	}
	slices.Sort(words)
	return slices.Compact(words)
}

func pushVocabulary(t stt.Transcriber, words []string) {
	vr, ok := t.(stt.VocabularyRestricter)
	if !ok || len(words) == 0 {
		return
	}
	if err := vr.RestrictVocabulary(words); err != nil && !errors.Is(err, stt.ErrNotSupported) {
		slog.Warn("dispatch: failed to restrict vocabulary", "err", err)
	}
}

// Listener returns the current listener.
func (d *Dispatcher) Listener() Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listener
}

// SetListener replaces the listener. The old one is stopped, waiting up to
// the stop timeout for its utterance in progress; utterances already queued
// on it are dropped. When start is true the new listener is started with
// ctx.
func (d *Dispatcher) SetListener(ctx context.Context, l Listener, start bool) error {
	d.mu.Lock()
	old := d.listener
	d.listener = l
	d.mu.Unlock()

	if old != nil && old != l {
		d.uncount()
		if !old.Stop(d.stopTimeout) {
			slog.Warn("dispatch: previous listener did not stop in time", "timeout", d.stopTimeout)
		}
		if n := old.Len(); n > 0 {
			slog.Warn("dispatch: dropping utterances of replaced listener", "count", n)
		}
	}
	if start && l != nil {
		return d.startListener(ctx, l)
	}
	return nil
}

// StartListening starts the current listener. ctx bounds the capture loop.
func (d *Dispatcher) StartListening(ctx context.Context) error {
	d.mu.RLock()
	l := d.listener
	d.mu.RUnlock()
	if l == nil {
		return errors.New("dispatch: no listener set")
	}
	return d.startListener(ctx, l)
}

func (d *Dispatcher) startListener(ctx context.Context, l Listener) error {
	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("dispatch: start listener: %w", err)
	}
	d.mu.Lock()
	if !d.counted {
		d.counted = true
		d.metrics.Listening.Add(ctx, 1)
	}
	d.mu.Unlock()
	slog.Info("dispatch: listening")
	return nil
}

// uncount removes the listener from the listening gauge once.
func (d *Dispatcher) uncount() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counted {
		d.counted = false
		d.metrics.Listening.Add(context.Background(), -1)
	}
}

// StopListening asks the current listener to stop after its utterance in
// progress. It does not wait, so actions may call it from Act. Utterances
// already captured are still dispatched.
func (d *Dispatcher) StopListening() {
	l := d.Listener()
	if l == nil || !l.IsListening() {
		return
	}
	l.Stop(0)
	d.uncount()
	slog.Info("dispatch: listening stopped")
}

// offer hands text to a single action. Disabled actions decline without
// being called.
func (d *Dispatcher) offer(ctx context.Context, a Action, text string) (Result, error) {
	log := observe.Logger(ctx)
	if !a.Enabled() {
		log.Debug("dispatch: action disabled, skipping", "action", a.Name())
		return NotProcessed(), nil
	}
	log.Debug("dispatch: offering text", "action", a.Name(), "text", text)
	res, err := a.Act(ctx, text)
	if err != nil {
		return res, fmt.Errorf("dispatch: action %q: %w", a.Name(), err)
	}
	return res, nil
}

// DispatchExcluding offers text to every registered action not in exclude,
// in registration order, and returns the first one that does not answer
// TextNotProcessed together with its result. When nobody claims the text it
// returns a nil Action and TextNotProcessed.
//
// It never changes focus, so actions may call it to delegate text to the
// others while keeping focus themselves.
func (d *Dispatcher) DispatchExcluding(ctx context.Context, text string, exclude ...Action) (Action, Result, error) {
	for _, a := range d.Actions() {
		if slices.Contains(exclude, a) {
			continue
		}
		res, err := d.offer(ctx, a, text)
		if err != nil {
			return a, res, err
		}
		if res.Process != TextNotProcessed {
			observe.Logger(ctx).Info("dispatch: text consumed",
				"action", a.Name(), "text", text, "result", res.Process.String())
			return a, res, nil
		}
	}
	return nil, NotProcessed(), nil
}

// Dispatch runs one step of the focus state machine for text.
//
// Without focus the text goes to every action in order; an action answering
// ProcessFutureText gains focus. With focus the focused action is asked
// first: TextProcessed clears focus, ProcessFutureText keeps it, and
// TextNotProcessed re-offers the text to all other actions, whose outcome
// decides the new focus. Blank text is never routed; any other text reaches
// the actions exactly as transcribed, and each action normalises it itself.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (Action, Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NotProcessed(), nil
	}
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "dispatch")
	defer span.End()

	a, res, err := d.dispatch(ctx, text)

	d.metrics.ActionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return a, res, err
	}
	name := ""
	if a != nil {
		name = a.Name()
	} else {
		d.metrics.UnconsumedTexts.Add(ctx, 1)
		observe.Logger(ctx).Info("dispatch: text unconsumed", "text", text)
	}
	d.metrics.RecordActionOutcome(ctx, name, res.Process.String())
	return a, res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, text string) (Action, Result, error) {
	focus := d.Focus()
	if focus == nil {
		a, res, err := d.DispatchExcluding(ctx, text)
		if err == nil && res.Process == ProcessFutureText {
			d.setFocus(ctx, a)
		}
		return a, res, err
	}

	res, err := d.offer(ctx, focus, text)
	if err != nil {
		return focus, res, err
	}
	switch res.Process {
	case TextProcessed:
		observe.Logger(ctx).Info("dispatch: text consumed",
			"action", focus.Name(), "text", text, "result", res.Process.String())
		d.setFocus(ctx, nil)
		return focus, res, nil
	case ProcessFutureText:
		observe.Logger(ctx).Info("dispatch: text consumed",
			"action", focus.Name(), "text", text, "result", res.Process.String())
		return focus, res, nil
	}

	a, res, err := d.DispatchExcluding(ctx, text, focus)
	if err != nil {
		return a, res, err
	}
	if res.Process == ProcessFutureText {
		d.setFocus(ctx, a)
	} else {
		d.setFocus(ctx, nil)
	}
	return a, res, nil
}

// Run starts listening and dispatches every transcribed utterance until the
// listener is exhausted or ctx ends. The listener is stopped on return.
// Action errors end the run and are returned; cancellation is not an error.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.StartListening(ctx); err != nil {
		return err
	}
	defer d.StopListening()

	texts := d.Texts(ctx)
	for texts.Next() {
		utt := texts.Utterance()
		uctx := observe.WithUtterance(ctx, utt.ID)
		if _, _, err := d.Dispatch(uctx, texts.Text()); err != nil {
			return err
		}
	}
	if err := texts.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
