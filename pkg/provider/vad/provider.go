// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session keeps its own smoothing state so
// that independent audio streams never influence each other's decisions.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result. The listener package adapts a session into a frame-state labeler so
// that utterance boundaries can be chosen by an engine instead of a fixed
// energy threshold.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines.
package vad

import (
	"errors"
	"fmt"

	"github.com/MrWong99/murmur/pkg/audio"
)

// Config holds the parameters for a VAD session. Thresholds are expressed in
// the engine's native scale; see each Engine's documentation.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Frames passed to
	// ProcessFrame must use this rate.
	SampleRate int

	// SpeechThreshold is the level at or above which a frame counts towards
	// speech onset.
	SpeechThreshold float64

	// SilenceThreshold is the level below which a frame counts towards the end
	// of speech. Must be ≤ SpeechThreshold.
	SilenceThreshold float64

	// OnsetFrames is the number of consecutive speech frames needed before a
	// speech segment starts. Zero means one frame.
	OnsetFrames int

	// HangoverFrames is the number of consecutive silent frames needed before
	// an active speech segment ends. Zero means one frame.
	HangoverFrames int
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate))
	}
	if c.SilenceThreshold > c.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad: silence threshold %v exceeds speech threshold %v", c.SilenceThreshold, c.SpeechThreshold))
	}
	if c.OnsetFrames < 0 || c.HangoverFrames < 0 {
		errs = append(errs, errors.New("vad: frame counts must not be negative"))
	}
	return errors.Join(errs...)
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	case Silence:
		return "silence"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is the detection result for a single frame.
type Event struct {
	Type EventType

	// Level is the detector's score for the frame in the engine's scale.
	Level float64
}

// SessionHandle is an active VAD session for a single audio stream.
type SessionHandle interface {
	// ProcessFrame analyses one frame and returns the detection result.
	// It must not block.
	ProcessFrame(frame audio.Sample) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	// The listener resets its session at the start of every utterance.
	Reset()

	// Close releases session resources. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
