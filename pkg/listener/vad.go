package listener

import (
	"log/slog"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// VAD labels frames with a voice activity detection session. The session is
// reset at the start of every utterance. Speech start and continuation map
// to Listen; silence and speech end map to Pause before speech and Stop after
// it. A detector error is logged and the frame treated as silence.
type VAD struct {
	Session vad.SessionHandle
}

var _ Labeler = VAD{}

// Label implements [Labeler].
func (l VAD) Label(latest audio.Sample, history []AnnotatedFrame) FrameState {
	if len(history) == 0 {
		l.Session.Reset()
	}
	ev, err := l.Session.ProcessFrame(latest)
	if err != nil {
		slog.Warn("listener: vad failed, treating frame as silence", "err", err)
		ev = vad.Event{Type: vad.Silence}
	}
	switch ev.Type {
	case vad.SpeechStart, vad.SpeechContinue:
		return Listen
	default:
		if speaking(history) {
			return Stop
		}
		return Pause
	}
}
