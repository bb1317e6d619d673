// Package mock provides test doubles for the mouse package: an in-memory
// [mouse.Screen] and a recording [mouse.Controller].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/internal/actions/mouse"
)

// ClickCall records one Screen.Click.
type ClickCall struct {
	Button mouse.Button
	Count  int
}

// Screen is an in-memory [mouse.Screen].
type Screen struct {
	mu     sync.Mutex
	pos    mouse.Point
	size   mouse.Point
	moves  []mouse.Point
	clicks []ClickCall

	// Err, if non-nil, is returned by every method.
	Err error
}

var _ mouse.Screen = (*Screen)(nil)

// NewScreen returns a width×height screen with the pointer at pos.
func NewScreen(width, height int, pos mouse.Point) *Screen {
	return &Screen{size: mouse.Point{X: width, Y: height}, pos: pos}
}

// Position implements [mouse.Screen].
func (s *Screen) Position() (mouse.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, s.Err
}

// Size implements [mouse.Screen].
func (s *Screen) Size() (mouse.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, s.Err
}

// MoveTo implements [mouse.Screen].
func (s *Screen) MoveTo(p mouse.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.pos = p
	s.moves = append(s.moves, p)
	return nil
}

// Click implements [mouse.Screen].
func (s *Screen) Click(b mouse.Button, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.clicks = append(s.clicks, ClickCall{Button: b, Count: count})
	return nil
}

// Moves returns every position passed to MoveTo.
func (s *Screen) Moves() []mouse.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mouse.Point(nil), s.moves...)
}

// Clicks returns every Click call.
func (s *Screen) Clicks() []ClickCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ClickCall(nil), s.clicks...)
}

// Controller is a [mouse.Controller] that records commands without moving
// anything.
type Controller struct {
	mu       sync.Mutex
	commands []mouse.Command

	// Pos is returned by Position.
	Pos mouse.Point

	// SendErr and PositionErr, if non-nil, are returned by Send and Position.
	SendErr     error
	PositionErr error
}

var _ mouse.Controller = (*Controller)(nil)

// Send records cmd.
func (c *Controller) Send(_ context.Context, cmd mouse.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.commands = append(c.commands, cmd)
	return nil
}

// Position returns Pos.
func (c *Controller) Position(context.Context) (mouse.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Pos, c.PositionErr
}

// Commands returns every command sent so far.
func (c *Controller) Commands() []mouse.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mouse.Command(nil), c.commands...)
}
