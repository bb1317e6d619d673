// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script Event responses and inspect the frames that were
// submitted for processing.
//
// Example:
//
//	sess := &mock.Session{Events: []vad.Event{{Type: vad.SpeechStart}}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// Engine is a mock implementation of [vad.Engine].
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new default Session is
	// returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of [vad.SessionHandle].
type Session struct {
	mu sync.Mutex

	// Events are returned by successive ProcessFrame calls. Once exhausted,
	// ProcessFrame returns a Silence event.
	Events []vad.Event

	// ProcessErr, if non-nil, is returned by every ProcessFrame call.
	ProcessErr error

	// Frames records every frame passed to ProcessFrame.
	Frames []audio.Sample

	// ResetCount and CloseCount record lifecycle calls.
	ResetCount int
	CloseCount int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame records the frame and returns the next scripted event.
func (s *Session) ProcessFrame(frame audio.Sample) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.Frames)
	s.Frames = append(s.Frames, frame)
	if s.ProcessErr != nil {
		return vad.Event{}, s.ProcessErr
	}
	if idx < len(s.Events) {
		return s.Events[idx], nil
	}
	return vad.Event{Type: vad.Silence}, nil
}

// Reset records the call. Scripted events are not rewound.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close records the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}
