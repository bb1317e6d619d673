// Package control provides the assistant's own voice commands: stopping the
// dispatcher and putting it to sleep on a wake-word transcriber.
package control

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/murmur/internal/actions/trigger"
	"github.com/MrWong99/murmur/internal/dispatch"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// Name is the action name the controller registers under.
const Name = "controller"

// Dispatcher is the part of [dispatch.Dispatcher] the controller drives.
type Dispatcher interface {
	StopListening()
	Transcriber() stt.Transcriber
	SetTranscriber(t stt.Transcriber)
}

var _ Dispatcher = (*dispatch.Dispatcher)(nil)

// Controller is a trigger table answering to:
//
//	stop                      stop listening; Run drains the queue and returns
//	go to sleep               switch to the wake-word transcriber
//	wake up, wake-up, wakeup  switch back to the normal transcriber
type Controller struct {
	*trigger.Table

	d    Dispatcher
	wake stt.Transcriber

	mu     sync.Mutex
	normal stt.Transcriber
}

var _ dispatch.Action = (*Controller)(nil)

// New returns a Controller for d. wake is the transcriber used while asleep,
// typically one restricted to the wake phrases. opts configure the
// underlying trigger table.
func New(d Dispatcher, wake stt.Transcriber, opts ...trigger.Option) *Controller {
	c := &Controller{
		Table: trigger.New(Name, opts...),
		d:     d,
		wake:  wake,
	}
	c.Add("stop", c.stop)
	c.Add("go to sleep", c.sleep)
	for _, w := range []string{"wake up", "wake-up", "wakeup"} {
		c.Add(w, c.wakeUp)
	}
	return c
}

// Asleep reports whether the wake-word transcriber is active.
func (c *Controller) Asleep() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.normal != nil
}

func (c *Controller) stop(_ context.Context, _ string) (dispatch.Result, error) {
	slog.Info("control: stop requested")
	c.d.StopListening()
	return dispatch.Processed(), nil
}

func (c *Controller) sleep(_ context.Context, _ string) (dispatch.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.normal != nil {
		slog.Debug("control: already asleep")
		return dispatch.Processed(), nil
	}
	if c.wake == nil {
		slog.Warn("control: no wake-word transcriber configured, staying awake")
		return dispatch.Processed(), nil
	}
	c.normal = c.d.Transcriber()
	c.d.SetTranscriber(c.wake)
	slog.Info("control: going to sleep")
	return dispatch.Processed(), nil
}

func (c *Controller) wakeUp(_ context.Context, _ string) (dispatch.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.normal == nil {
		slog.Debug("control: already awake")
		return dispatch.Processed(), nil
	}
	c.d.SetTranscriber(c.normal)
	c.normal = nil
	slog.Info("control: waking up")
	return dispatch.Processed(), nil
}
