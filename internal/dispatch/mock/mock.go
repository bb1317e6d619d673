// Package mock provides test doubles for the dispatch package: a scripted
// [Action] and an in-memory [Listener].
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/murmur/internal/dispatch"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/listener"
)

// Action is a mock [dispatch.Action]. Responses maps a text to the result
// returned for it; unknown texts get Default. Every offered text is recorded.
type Action struct {
	*dispatch.Base

	Responses map[string]dispatch.Result
	Default   dispatch.Result
	Words     []string

	// Err, if non-nil, is returned by every Act call.
	Err error

	// OnAct, if set, runs before the scripted response is returned; a
	// non-nil return value replaces it.
	OnAct func(ctx context.Context, text string) *dispatch.Result

	mu    sync.Mutex
	texts []string
}

var _ dispatch.Action = (*Action)(nil)

// NewAction returns an enabled mock action called name.
func NewAction(name string, responses map[string]dispatch.Result) *Action {
	return &Action{Base: dispatch.NewBase(name), Responses: responses}
}

// RecognizedWords implements [dispatch.Action].
func (a *Action) RecognizedWords() []string { return a.Words }

// Act records text and returns the scripted result.
func (a *Action) Act(ctx context.Context, text string) (dispatch.Result, error) {
	if !a.Enabled() {
		return dispatch.NotProcessed(), nil
	}
	a.mu.Lock()
	a.texts = append(a.texts, text)
	a.mu.Unlock()
	if a.Err != nil {
		return dispatch.NotProcessed(), a.Err
	}
	if a.OnAct != nil {
		if r := a.OnAct(ctx, text); r != nil {
			return *r, nil
		}
	}
	if r, ok := a.Responses[text]; ok {
		return r, nil
	}
	return a.Default, nil
}

// Texts returns every text offered so far.
func (a *Action) Texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...)
}

// Listener is an in-memory [dispatch.Listener]. Samples queued with Push are
// returned by Get in order; once Close is called and the queue is drained,
// Get returns [listener.ErrClosed].
type Listener struct {
	// StartErr, if non-nil, is returned by Start.
	StartErr error

	mu         sync.Mutex
	queue      []audio.Sample
	listening  bool
	closed     bool
	changed    chan struct{}
	StartCount int
	StopCount  int
}

var _ dispatch.Listener = (*Listener)(nil)

// NewListener returns a listener pre-loaded with samples. When closed is
// true the listener ends after them.
func NewListener(closed bool, samples ...audio.Sample) *Listener {
	return &Listener{queue: samples, closed: closed, changed: make(chan struct{})}
}

// Start marks the listener as listening.
func (l *Listener) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StartCount++
	if l.StartErr != nil {
		return l.StartErr
	}
	if l.listening {
		return listener.ErrAlreadyRunning
	}
	l.listening = true
	return nil
}

// Stop ends listening and closes the listener.
func (l *Listener) Stop(time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StopCount++
	l.listening = false
	l.closeLocked()
	return true
}

// Close lets Get return ErrClosed once the queue is drained.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *Listener) closeLocked() {
	if !l.closed {
		l.closed = true
		l.broadcastLocked()
	}
}

// Push queues a sample.
func (l *Listener) Push(s audio.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, s)
	l.broadcastLocked()
}

func (l *Listener) broadcastLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// IsListening reports whether Start was called without a later Stop.
func (l *Listener) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// Len returns the queue length.
func (l *Listener) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Empty reports whether the queue is empty.
func (l *Listener) Empty() bool { return l.Len() == 0 }

// Get pops the next sample, blocking while the queue is empty and the
// listener is open.
func (l *Listener) Get(ctx context.Context) (audio.Sample, error) {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			s := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return s, nil
		}
		if l.closed {
			l.mu.Unlock()
			return audio.Sample{}, listener.ErrClosed
		}
		ch := l.changed
		l.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return audio.Sample{}, ctx.Err()
		}
	}
}

// ErrScripted is a convenience error for tests.
var ErrScripted = errors.New("mock: scripted failure")
