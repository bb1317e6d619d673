// Package listener segments a continuous [audio.Source] into utterances.
//
// Segmentation is driven by a [Labeler] that annotates every chunk read from
// the source with a [FrameState]. A [Listener] reads and labels chunks until
// the labeler reports [Stop] (or the source ends), keeps the frames that
// belong to speech and joins them into one [audio.Sample]. [Background] runs a
// listener in its own goroutine and queues the resulting utterances for a
// consumer.
package listener

import (
	"fmt"

	"github.com/MrWong99/murmur/pkg/audio"
)

// FrameState classifies a chunk of audio within the utterance being built.
type FrameState int

const (
	// Listen marks a frame that belongs to speech and should be kept.
	Listen FrameState = iota

	// Pause marks a frame that is not speech but does not end the utterance,
	// typically leading silence before anyone has spoken.
	Pause

	// Stop marks the frame that ends the utterance.
	Stop
)

// String returns the upper-case state name.
func (s FrameState) String() string {
	switch s {
	case Listen:
		return "LISTEN"
	case Pause:
		return "PAUSE"
	case Stop:
		return "STOP"
	default:
		return fmt.Sprintf("FrameState(%d)", int(s))
	}
}

// AnnotatedFrame pairs a chunk of audio with the state its labeler assigned.
type AnnotatedFrame struct {
	Frame audio.Sample
	State FrameState
}

// Labeler decides the state of the latest chunk given every frame labelled
// so far in the current utterance. history is empty at the start of each
// utterance.
//
// Implementations must not modify history.
type Labeler interface {
	Label(latest audio.Sample, history []AnnotatedFrame) FrameState
}

// LabelerFunc adapts an ordinary function to the [Labeler] interface.
type LabelerFunc func(latest audio.Sample, history []AnnotatedFrame) FrameState

// Label calls f(latest, history).
func (f LabelerFunc) Label(latest audio.Sample, history []AnnotatedFrame) FrameState {
	return f(latest, history)
}

// speaking reports whether the utterance has reached speech, i.e. the most
// recent frame was labelled Listen.
func speaking(history []AnnotatedFrame) bool {
	return len(history) > 0 && history[len(history)-1].State == Listen
}
