package listener

import (
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"

	"github.com/MrWong99/murmur/pkg/audio"
)

// DefaultFluxRatio is the factor by which spectral flux must rise over (or
// fall below) the running reference to count as speech onset (or offset).
const DefaultFluxRatio = 1.75

// Flux is an adaptive labeler based on spectral flux: the summed positive
// change of the magnitude spectrum between consecutive chunks. It needs no
// absolute threshold, so it copes with microphones of different gain.
//
// The first chunk of an utterance only seeds the reference and is Pause.
// Before speech, a chunk is Listen when its flux reaches Ratio times the
// reference. During speech, a chunk is Stop when its flux drops to 1/Ratio
// of the reference. The reference follows the flux otherwise.
//
// Flux is stateful and must not be shared between listeners.
type Flux struct {
	// Ratio defaults to [DefaultFluxRatio] when zero.
	Ratio float64

	mu        sync.Mutex
	prev      []float64
	reference float64
}

var _ Labeler = (*Flux)(nil)

// Label implements [Labeler].
func (l *Flux) Label(latest audio.Sample, history []AnnotatedFrame) FrameState {
	l.mu.Lock()
	defer l.mu.Unlock()

	ratio := l.Ratio
	if ratio <= 0 {
		ratio = DefaultFluxRatio
	}
	if len(history) == 0 {
		l.prev = nil
		l.reference = 0
	}

	flux := l.flux(latest)
	if l.reference == 0 {
		l.reference = flux
		return Pause
	}

	if speaking(history) {
		if flux*ratio <= l.reference {
			return Stop
		}
		l.reference = flux
		return Listen
	}

	state := Pause
	if flux >= l.reference*ratio {
		state = Listen
	}
	l.reference = flux
	return state
}

// flux computes the spectral flux of s against the previous chunk and
// remembers the spectrum for the next call.
func (l *Flux) flux(s audio.Sample) float64 {
	mono := s.Float32Mono()
	in := make([]float64, len(mono))
	for i, v := range mono {
		in[i] = float64(v)
	}
	var spectrum []float64
	if len(in) > 0 {
		coeffs := fft.FFTReal(in)
		// The upper half mirrors the lower half for real input.
		spectrum = make([]float64, len(coeffs)/2+1)
		for i := range spectrum {
			spectrum[i] = cmplx.Abs(coeffs[i])
		}
	}

	var sum float64
	for i, mag := range spectrum {
		var prev float64
		if i < len(l.prev) {
			prev = l.prev[i]
		}
		if d := mag - prev; d > 0 {
			sum += d
		}
	}
	l.prev = spectrum
	return sum
}
