// Package trigger implements a phrase table action: each trigger phrase maps
// to a handler, and text is routed to the handler whose trigger it equals
// after normalisation.
//
// Exact matching is the default. [WithFuzzyMatch] adds a phonetic fallback
// for phrases a recogniser gets slightly wrong ("wake hop" for "wake up"):
// the candidate must have the same number of words as the text, every word
// pair must share a Double Metaphone code or be Jaro-Winkler similar, and the
// whole phrase must reach the configured Jaro-Winkler score.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/murmur/internal/dispatch"
)

// Handler runs when a trigger matches. text is the normalised trigger.
type Handler func(ctx context.Context, text string) (dispatch.Result, error)

// Transform normalises both triggers and incoming text.
type Transform func(string) string

// Normalize lower-cases s and collapses runs of whitespace. It is the default
// [Transform].
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Identity leaves triggers untouched.
func Identity(s string) string { return s }

// Option configures a [Table].
type Option func(*Table)

// WithTransform replaces the default [Normalize] transform.
func WithTransform(fn Transform) Option {
	return func(t *Table) { t.transform = fn }
}

// WithFuzzyMatch enables phonetic fallback matching. threshold is the minimum
// Jaro-Winkler similarity in (0, 1]; zero disables the fallback.
func WithFuzzyMatch(threshold float64) Option {
	return func(t *Table) { t.fuzzy = threshold }
}

// Table is a [dispatch.Action] backed by a phrase→handler dictionary.
// All methods are safe for concurrent use.
type Table struct {
	*dispatch.Base

	transform Transform
	fuzzy     float64

	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
}

var _ dispatch.Action = (*Table)(nil)

// New returns an empty, enabled table called name.
func New(name string, opts ...Option) *Table {
	t := &Table{
		Base:      dispatch.NewBase(name),
		transform: Normalize,
		handlers:  make(map[string]Handler),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetFuzzyThreshold changes the fuzzy fallback threshold at runtime.
func (t *Table) SetFuzzyThreshold(threshold float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fuzzy = threshold
}

// Add registers h for trigger, replacing any previous handler for the same
// normalised phrase.
func (t *Table) Add(trigger string, h Handler) {
	key := t.transform(trigger)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[key]; !ok {
		t.order = append(t.order, key)
	}
	t.handlers[key] = h
}

// Get returns the handler registered for trigger.
func (t *Table) Get(trigger string) (Handler, bool) {
	key := t.transform(trigger)
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[key]
	return h, ok
}

// Delete removes trigger and reports whether it was present.
func (t *Table) Delete(trigger string) bool {
	key := t.transform(trigger)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[key]; !ok {
		return false
	}
	delete(t.handlers, key)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == key })
	return true
}

// Triggers returns the normalised triggers in registration order.
func (t *Table) Triggers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.order)
}

// RecognizedWords returns every distinct word of every trigger, sorted.
func (t *Table) RecognizedWords() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var words []string
	for _, trig := range t.order {
		words = append(words, strings.Fields(trig)...)
	}
	slices.Sort(words)
	return slices.Compact(words)
}

// Act runs the handler matching text. Unknown text is declined.
func (t *Table) Act(ctx context.Context, text string) (dispatch.Result, error) {
	if !t.Enabled() {
		return dispatch.NotProcessed(), nil
	}
	key := t.transform(text)
	trig, h, ok := t.lookup(key)
	if !ok {
		return dispatch.NotProcessed(), nil
	}
	if trig != key {
		slog.Debug("trigger: fuzzy match", "action", t.Name(), "text", key, "trigger", trig)
	}

	res, err := h(ctx, trig)
	if err != nil {
		return res, fmt.Errorf("trigger: %s %q: %w", t.Name(), trig, err)
	}
	if dispatch.RecordingRequested(ctx) && res.RecordingData == nil {
		res.RecordingData = map[string]string{"trigger": trig}
	}
	return res, nil
}

// lookup finds the handler for key, exactly first and then fuzzily.
func (t *Table) lookup(key string) (string, Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.handlers[key]; ok {
		return key, h, true
	}
	if t.fuzzy <= 0 || key == "" {
		return "", nil, false
	}

	var (
		best      string
		bestScore float64
	)
	for _, trig := range t.order {
		if s, ok := phraseScore(key, trig, t.fuzzy); ok && s > bestScore {
			best, bestScore = trig, s
		}
	}
	if best == "" {
		return "", nil, false
	}
	return best, t.handlers[best], true
}

// phraseScore returns the Jaro-Winkler similarity of text and trigger and
// whether trigger is an acceptable fuzzy match for text.
func phraseScore(text, trigger string, threshold float64) (float64, bool) {
	tw, gw := strings.Fields(text), strings.Fields(trigger)
	if len(tw) != len(gw) {
		return 0, false
	}
	for i := range tw {
		if tw[i] == gw[i] {
			continue
		}
		if !soundAlike(tw[i], gw[i]) && matchr.JaroWinkler(tw[i], gw[i], false) < threshold {
			return 0, false
		}
	}
	score := matchr.JaroWinkler(text, trigger, false)
	return score, score >= threshold
}

// soundAlike reports whether a and b share a Double Metaphone code.
func soundAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
