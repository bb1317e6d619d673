package listener

import (
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
)

// DefaultSilenceThreshold is the RMS level above which a 16-bit chunk is
// treated as speech by [SilenceBased].
const DefaultSilenceThreshold = 500

// TimeBased records a fixed amount of audio. Every chunk is Listen until the
// accumulated duration (history plus latest) reaches Total; a zero-length
// chunk also stops the utterance.
type TimeBased struct {
	Total time.Duration
}

var _ Labeler = TimeBased{}

// Label implements [Labeler].
func (l TimeBased) Label(latest audio.Sample, history []AnnotatedFrame) FrameState {
	total := latest.Seconds()
	for _, f := range history {
		total += f.Frame.Seconds()
	}
	if total < l.Total.Seconds() && !latest.IsEmpty() {
		return Listen
	}
	return Stop
}

// SilenceBased splits on energy. A chunk whose RMS exceeds ThresholdRMS is
// Listen. A quiet chunk is Pause while nobody has spoken yet and Stop once
// speech has been heard.
type SilenceBased struct {
	ThresholdRMS float64
}

var _ Labeler = SilenceBased{}

// Label implements [Labeler].
func (l SilenceBased) Label(latest audio.Sample, history []AnnotatedFrame) FrameState {
	if latest.RMS() > l.ThresholdRMS {
		return Listen
	}
	if len(history) == 0 || history[len(history)-1].State == Pause {
		return Pause
	}
	return Stop
}
