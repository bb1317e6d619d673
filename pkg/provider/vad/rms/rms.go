// Package rms provides a pure-Go [vad.Engine] based on RMS energy levels.
//
// It uses hysteresis so that short dips or spikes do not flip the decision:
// speech starts after OnsetFrames consecutive frames at or above
// SpeechThreshold and ends after HangoverFrames consecutive frames below
// SilenceThreshold. Thresholds are in raw PCM units (the same scale as
// [audio.Sample.RMS]).
package rms

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// ErrClosed is returned by ProcessFrame after Close.
var ErrClosed = errors.New("rms: session closed")

// Engine creates RMS sessions. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = Engine{}

// NewSession implements [vad.Engine].
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rms: %w", err)
	}
	return &session{
		cfg:      cfg,
		onset:    max(cfg.OnsetFrames, 1),
		hangover: max(cfg.HangoverFrames, 1),
	}, nil
}

type session struct {
	mu       sync.Mutex
	cfg      vad.Config
	onset    int
	hangover int

	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

func (s *session) ProcessFrame(frame audio.Sample) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, ErrClosed
	}
	if f := frame.Format(); f.SampleRate != 0 && f.SampleRate != s.cfg.SampleRate {
		return vad.Event{}, fmt.Errorf("rms: frame rate %d does not match session rate %d", f.SampleRate, s.cfg.SampleRate)
	}

	level := frame.RMS()
	ev := vad.Event{Level: level}

	if s.inSpeech {
		if level < s.cfg.SilenceThreshold {
			s.silenceCount++
			if s.silenceCount >= s.hangover {
				s.inSpeech = false
				s.silenceCount = 0
				ev.Type = vad.SpeechEnd
				return ev, nil
			}
		} else {
			s.silenceCount = 0
		}
		ev.Type = vad.SpeechContinue
		return ev, nil
	}

	if level >= s.cfg.SpeechThreshold {
		s.speechCount++
		if s.speechCount >= s.onset {
			s.inSpeech = true
			s.speechCount = 0
			ev.Type = vad.SpeechStart
			return ev, nil
		}
	} else {
		s.speechCount = 0
	}
	ev.Type = vad.Silence
	return ev, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
