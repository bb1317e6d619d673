package listener

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
)

var (
	// ErrAlreadyRunning is returned by [Background.Start] while a capture
	// loop is still alive.
	ErrAlreadyRunning = errors.New("listener: background listener is already running")

	// ErrClosed is returned by [Background.Get] once the capture loop has
	// ended and every queued utterance has been consumed.
	ErrClosed = errors.New("listener: background listener stopped and queue is empty")
)

// Utterer produces one utterance per call. [*Listener] implements it.
type Utterer interface {
	Listen(ctx context.Context) (audio.Sample, error)
}

// Background runs an [Utterer] in its own goroutine and queues every
// utterance in an unbounded FIFO for a consumer.
//
// All methods are safe for concurrent use.
type Background struct {
	listener Utterer

	listening atomic.Bool

	mu      sync.Mutex
	queue   []audio.Sample
	changed chan struct{} // closed and replaced on every enqueue and on loop exit
	done    chan struct{} // closed when the current loop exits; nil before the first Start
	lastErr error
}

// NewBackground wraps l. Nothing is captured until Start is called.
func NewBackground(l Utterer) *Background {
	return &Background{
		listener: l,
		changed:  make(chan struct{}),
	}
}

// Start launches the capture loop. It returns [ErrAlreadyRunning] if a loop
// started earlier has not exited yet, even when Stop has been requested.
// Cancelling ctx aborts the loop at the next source read.
func (b *Background) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loopAliveLocked() {
		return ErrAlreadyRunning
	}
	done := make(chan struct{})
	b.done = done
	b.lastErr = nil
	b.listening.Store(true)
	go b.loop(ctx, done)
	return nil
}

// Stop asks the capture loop to exit after the utterance in progress and
// waits up to timeout for it to do so. It reports whether the loop has
// terminated. A non-positive timeout does not wait and reports true.
//
// Stop is cooperative: a loop blocked in a source read only notices once the
// read returns. Cancel the context passed to Start to interrupt it.
func (b *Background) Stop(timeout time.Duration) bool {
	b.listening.Store(false)

	b.mu.Lock()
	done := b.done
	b.mu.Unlock()

	if done == nil || timeout <= 0 {
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// IsListening reports whether the capture loop is running and has not been
// asked to stop.
func (b *Background) IsListening() bool {
	return b.listening.Load()
}

// Get blocks until an utterance is available and removes it from the queue.
// It returns [ErrClosed] when the loop is no longer running and the queue is
// empty, or the context error if ctx ends first.
func (b *Background) Get(ctx context.Context) (audio.Sample, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			s := b.queue[0]
			b.queue[0] = audio.Sample{}
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return s, nil
		}
		alive := b.loopAliveLocked()
		changed := b.changed
		b.mu.Unlock()

		if !alive {
			return audio.Sample{}, ErrClosed
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return audio.Sample{}, ctx.Err()
		}
	}
}

// Len returns the number of queued utterances.
func (b *Background) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Empty reports whether the queue holds no utterances.
func (b *Background) Empty() bool { return b.Len() == 0 }

// Err returns the error that terminated the most recent loop, or nil when it
// ended because of Stop or end of stream.
func (b *Background) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Done returns a channel closed when the current loop exits, or nil when the
// listener was never started.
func (b *Background) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

func (b *Background) loop(ctx context.Context, done chan struct{}) {
	var loopErr error
	defer func() {
		b.listening.Store(false)
		b.mu.Lock()
		b.lastErr = loopErr
		close(done)
		b.broadcastLocked()
		b.mu.Unlock()
	}()

	for b.listening.Load() {
		s, err := b.listener.Listen(ctx)
		switch {
		case errors.Is(err, audio.ErrEndOfStream):
			slog.Info("listener: source reached end of stream, stopping background listener")
			return
		case ctx.Err() != nil:
			slog.Info("listener: context done, stopping background listener")
			return
		case err != nil:
			slog.Error("listener: background listener failed", "err", err)
			loopErr = err
			return
		}
		slog.Debug("listener: queued utterance", "duration", s.Duration())

		b.mu.Lock()
		b.queue = append(b.queue, s)
		b.broadcastLocked()
		b.mu.Unlock()
	}
}

func (b *Background) loopAliveLocked() bool {
	if b.done == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

func (b *Background) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}
