package mouse

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start on a running worker.
	ErrAlreadyRunning = errors.New("mouse: worker already running")

	// ErrNotRunning is returned when a command is sent to a stopped worker.
	ErrNotRunning = errors.New("mouse: worker not running")
)

// Direction is an edge of the screen the pointer can travel to.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Up    Direction = "up"
	Down  Direction = "down"
)

// Command is a message for the [Worker]. Commands are plain values; the
// worker never shares them.
type Command interface {
	command()
}

// Move glides the pointer to the screen edge in Direction at Speed pixels
// per second.
type Move struct {
	Direction Direction
	Speed     float64
}

// MoveTo glides the pointer to Target at Speed pixels per second.
type MoveTo struct {
	Target Point
	Speed  float64
}

// Halt stops any glide in progress.
type Halt struct{}

// Click stops any glide and clicks Button Count times.
type Click struct {
	Button Button
	Count  int
}

func (Move) command()   {}
func (MoveTo) command() {}
func (Halt) command()   {}
func (Click) command()  {}

// WorkerOption configures a [Worker].
type WorkerOption func(*Worker)

// WithTick sets how often a glide updates the pointer. Defaults to 16 ms.
func WithTick(d time.Duration) WorkerOption {
	return func(w *Worker) { w.tick = d }
}

// WithQueueSize sets the command buffer length. Defaults to 32.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) { w.queueSize = n }
}

// Worker is the only goroutine that touches the [Screen]. Commands are
// handled in the order they are sent. A glide runs in the background of the
// loop; any later gesture replaces it.
type Worker struct {
	screen    Screen
	tick      time.Duration
	queueSize int

	mu      sync.Mutex
	cmds    chan Command
	queries chan chan positionReply
	cancel  context.CancelFunc
	done    chan struct{}
}

type positionReply struct {
	p   Point
	err error
}

// glide is a pointer movement in progress.
type glide struct {
	from, to Point
	start    time.Time
	dur      time.Duration
}

// NewWorker returns a stopped worker owning s.
func NewWorker(s Screen, opts ...WorkerOption) *Worker {
	w := &Worker{screen: s, tick: 16 * time.Millisecond, queueSize: 32}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start launches the worker goroutine. It runs until ctx is cancelled or
// Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		select {
		case <-w.done:
		default:
			return ErrAlreadyRunning
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.cmds = make(chan Command, w.queueSize)
	w.queries = make(chan chan positionReply)
	go w.run(ctx, w.cmds, w.queries, w.done)
	return nil
}

// Stop ends the worker and waits for it to exit. Queued commands are
// discarded.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the worker goroutine is alive.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Worker) channels() (chan Command, chan chan positionReply, chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cmds, w.queries, w.done
}

// Send queues cmd. It blocks while the queue is full.
func (w *Worker) Send(ctx context.Context, cmd Command) error {
	cmds, _, done := w.channels()
	if done == nil {
		return ErrNotRunning
	}
	select {
	case <-done:
		return ErrNotRunning
	default:
	}
	select {
	case cmds <- cmd:
		return nil
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Position asks the worker for the pointer position. It does not interrupt
// a glide.
func (w *Worker) Position(ctx context.Context) (Point, error) {
	_, queries, done := w.channels()
	if done == nil {
		return Point{}, ErrNotRunning
	}
	select {
	case <-done:
		return Point{}, ErrNotRunning
	default:
	}
	reply := make(chan positionReply, 1)
	select {
	case queries <- reply:
	case <-done:
		return Point{}, ErrNotRunning
	case <-ctx.Done():
		return Point{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.p, r.err
	case <-ctx.Done():
		return Point{}, ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context, cmds <-chan Command, queries <-chan chan positionReply, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	var current *glide
	for {
		var tick <-chan time.Time
		if current != nil {
			tick = ticker.C
		}
		select {
		case <-ctx.Done():
			return
		case cmd := <-cmds:
			current = w.handle(cmd, current)
		case reply := <-queries:
			p, err := w.screen.Position()
			reply <- positionReply{p: p, err: err}
		case now := <-tick:
			current = w.step(current, now)
		}
	}
}

// handle applies cmd and returns the glide that should continue.
func (w *Worker) handle(cmd Command, current *glide) *glide {
	switch c := cmd.(type) {
	case Halt:
		return nil
	case Click:
		if err := w.screen.Click(c.Button, c.Count); err != nil {
			slog.Warn("mouse: click failed", "button", c.Button, "count", c.Count, "err", err)
		}
		return nil
	case Move:
		target, err := w.edge(c.Direction)
		if err != nil {
			slog.Warn("mouse: cannot resolve direction", "direction", c.Direction, "err", err)
			return current
		}
		return w.begin(target, c.Speed)
	case MoveTo:
		return w.begin(c.Target, c.Speed)
	default:
		slog.Error("mouse: unknown command", "command", cmd)
		return current
	}
}

// edge returns the point on the screen border in direction d, keeping the
// other coordinate.
func (w *Worker) edge(d Direction) (Point, error) {
	pos, err := w.screen.Position()
	if err != nil {
		return Point{}, err
	}
	size, err := w.screen.Size()
	if err != nil {
		return Point{}, err
	}
	switch d {
	case Left:
		return Point{X: 0, Y: pos.Y}, nil
	case Right:
		return Point{X: size.X - 1, Y: pos.Y}, nil
	case Up:
		return Point{X: pos.X, Y: 0}, nil
	case Down:
		return Point{X: pos.X, Y: size.Y - 1}, nil
	}
	return Point{}, errors.New("mouse: unknown direction")
}

func (w *Worker) begin(target Point, speed float64) *glide {
	from, err := w.screen.Position()
	if err != nil {
		slog.Warn("mouse: cannot read position", "err", err)
		return nil
	}
	dist := math.Hypot(float64(target.X-from.X), float64(target.Y-from.Y))
	if speed <= 0 || dist == 0 {
		if err := w.screen.MoveTo(target); err != nil {
			slog.Warn("mouse: move failed", "target", target, "err", err)
		}
		return nil
	}
	dur := time.Duration(dist / speed * float64(time.Second))
	slog.Debug("mouse: glide", "from", from, "to", target, "duration", dur)
	return &glide{from: from, to: target, start: time.Now(), dur: dur}
}

// step advances g to now and returns nil once it has arrived.
func (w *Worker) step(g *glide, now time.Time) *glide {
	frac := float64(now.Sub(g.start)) / float64(g.dur)
	if frac >= 1 {
		if err := w.screen.MoveTo(g.to); err != nil {
			slog.Warn("mouse: move failed", "target", g.to, "err", err)
		}
		return nil
	}
	p := Point{
		X: g.from.X + int(math.Round(float64(g.to.X-g.from.X)*frac)),
		Y: g.from.Y + int(math.Round(float64(g.to.Y-g.from.Y)*frac)),
	}
	if err := w.screen.MoveTo(p); err != nil {
		slog.Warn("mouse: move failed", "target", p, "err", err)
		return nil
	}
	return g
}
