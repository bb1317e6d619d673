package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrFormatMismatch is returned when two samples with different formats are
// combined.
var ErrFormatMismatch = errors.New("audio: format mismatch")

// Format describes the layout of PCM data: samples per second, interleaved
// channel count and bytes per single-channel sample.
type Format struct {
	SampleRate  int
	Channels    int
	SampleWidth int
}

// DefaultFormat is the format microphone capture and most STT engines use:
// 16 kHz mono signed 16-bit.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}

// FrameWidth is the number of bytes one frame (all channels) occupies.
func (f Format) FrameWidth() int { return f.Channels * f.SampleWidth }

// Validate reports whether the format is usable.
func (f Format) Validate() error {
	var errs []error
	if f.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate))
	}
	if f.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio: channel count must be positive, got %d", f.Channels))
	}
	switch f.SampleWidth {
	case 1, 2, 4:
	default:
		errs = append(errs, fmt.Errorf("audio: unsupported sample width %d", f.SampleWidth))
	}
	return errors.Join(errs...)
}

// String returns a human-readable form, e.g. "16000Hz mono s16".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s s%d", f.SampleRate, ch, f.SampleWidth*8)
}

// Sample is an immutable buffer of interleaved little-endian PCM audio.
//
// Every constructor copies its input and every accessor that exposes bytes
// returns a copy, so a Sample can be handed between goroutines freely.
// 8-bit audio is unsigned (as in WAV files); wider widths are signed.
type Sample struct {
	data   []byte
	format Format
}

// NewSample copies data into a new Sample. Trailing bytes that do not form a
// whole frame are dropped.
func NewSample(data []byte, format Format) Sample {
	fw := format.FrameWidth()
	if fw > 0 {
		data = data[:len(data)-len(data)%fw]
	}
	return Sample{data: bytes.Clone(data), format: format}
}

// Empty returns a zero-length sample in the given format.
func Empty(format Format) Sample { return Sample{format: format} }

// Silence returns d worth of zero-energy audio.
func Silence(d time.Duration, format Format) Sample {
	n := int(d.Seconds() * float64(format.SampleRate))
	data := make([]byte, n*format.FrameWidth())
	if format.SampleWidth == 1 {
		for i := range data {
			data[i] = 0x80
		}
	}
	return Sample{data: data, format: format}
}

// FromInt16 builds a 16-bit sample from interleaved samples. The channel and
// rate fields of format are used; SampleWidth is forced to 2.
func FromInt16(samples []int16, format Format) Sample {
	format.SampleWidth = 2
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return Sample{data: data, format: format}
}

// Format returns the sample's format.
func (s Sample) Format() Format { return s.format }

// Bytes returns a copy of the raw PCM data.
func (s Sample) Bytes() []byte { return bytes.Clone(s.data) }

// Len returns the size of the raw PCM data in bytes.
func (s Sample) Len() int { return len(s.data) }

// IsEmpty reports whether the sample holds no frames.
func (s Sample) IsEmpty() bool { return len(s.data) == 0 }

// NFrames returns the number of frames (one value per channel) in the sample.
func (s Sample) NFrames() int {
	fw := s.format.FrameWidth()
	if fw == 0 {
		return 0
	}
	return len(s.data) / fw
}

// Duration returns the playback duration of the sample.
func (s Sample) Duration() time.Duration {
	if s.format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.NFrames()) * time.Second / time.Duration(s.format.SampleRate)
}

// Seconds returns the playback duration in fractional seconds.
func (s Sample) Seconds() float64 {
	if s.format.SampleRate <= 0 {
		return 0
	}
	return float64(s.NFrames()) / float64(s.format.SampleRate)
}

// SliceFrames returns frames [start, stop). Bounds are clamped to the sample.
func (s Sample) SliceFrames(start, stop int) Sample {
	n := s.NFrames()
	start = min(max(start, 0), n)
	stop = min(max(stop, start), n)
	fw := s.format.FrameWidth()
	return Sample{data: bytes.Clone(s.data[start*fw : stop*fw]), format: s.format}
}

// SliceTime returns the audio between two offsets from the start of the sample.
func (s Sample) SliceTime(start, stop time.Duration) Sample {
	rate := float64(s.format.SampleRate)
	return s.SliceFrames(int(start.Seconds()*rate), int(stop.Seconds()*rate))
}

// Append returns a new sample holding s followed by other. An empty sample
// with a zero format adopts the format of the other operand.
func (s Sample) Append(other Sample) (Sample, error) {
	return Join(s, other)
}

// Join concatenates samples in order. Samples that carry a format must share
// it. The zero Sample is skipped; PCM bytes without a format are rejected
// with [ErrFormatMismatch].
func Join(samples ...Sample) (Sample, error) {
	var (
		format Format
		size   int
		set    bool
	)
	for _, smp := range samples {
		if smp.format == (Format{}) {
			if len(smp.data) > 0 {
				return Sample{}, fmt.Errorf("%w: %d bytes without a format", ErrFormatMismatch, len(smp.data))
			}
			continue
		}
		if !set {
			format, set = smp.format, true
		} else if smp.format != format {
			return Sample{}, fmt.Errorf("%w: %s and %s", ErrFormatMismatch, format, smp.format)
		}
		size += len(smp.data)
	}
	data := make([]byte, 0, size)
	for _, smp := range samples {
		data = append(data, smp.data...)
	}
	return Sample{data: data, format: format}, nil
}

// Equal reports whether both samples have identical formats and PCM bytes.
func (s Sample) Equal(other Sample) bool {
	return s.format == other.format && bytes.Equal(s.data, other.data)
}

// Ints decodes every sample value (all channels interleaved) as a signed
// integer. 8-bit data is re-centred around zero.
func (s Sample) Ints() []int {
	w := s.format.SampleWidth
	if w == 0 {
		return nil
	}
	out := make([]int, len(s.data)/w)
	for i := range out {
		out[i] = decodeValue(s.data[i*w:], w)
	}
	return out
}

// RMS returns the root-mean-square amplitude over all channels, truncated to
// an integer number of PCM units. An empty sample has RMS 0.
func (s Sample) RMS() float64 {
	w := s.format.SampleWidth
	if w == 0 || len(s.data) < w {
		return 0
	}
	n := len(s.data) / w
	var sum float64
	for i := range n {
		v := float64(decodeValue(s.data[i*w:], w))
		sum += v * v
	}
	return math.Floor(math.Sqrt(sum / float64(n)))
}

// Float32Mono downmixes to a single channel and normalises to [-1, 1].
func (s Sample) Float32Mono() []float32 {
	ch := s.format.Channels
	w := s.format.SampleWidth
	if ch == 0 || w == 0 {
		return nil
	}
	scale := float32(int64(1) << (w*8 - 1))
	frames := s.NFrames()
	out := make([]float32, frames)
	for i := range frames {
		var acc float32
		for c := range ch {
			acc += float32(decodeValue(s.data[(i*ch+c)*w:], w))
		}
		out[i] = acc / float32(ch) / scale
	}
	return out
}

// RemoveDCOffset subtracts each channel's mean value so the waveform is
// centred on zero.
func (s Sample) RemoveDCOffset() Sample {
	ch := s.format.Channels
	w := s.format.SampleWidth
	frames := s.NFrames()
	if frames == 0 {
		return s
	}
	means := make([]int, ch)
	for c := range ch {
		var sum int64
		for i := range frames {
			sum += int64(decodeValue(s.data[(i*ch+c)*w:], w))
		}
		means[c] = int(sum / int64(frames))
	}
	out := make([]byte, len(s.data))
	for i := range frames {
		for c := range ch {
			off := (i*ch + c) * w
			encodeValue(out[off:], w, decodeValue(s.data[off:], w)-means[c])
		}
	}
	return Sample{data: out, format: s.format}
}

func decodeValue(b []byte, width int) int {
	switch width {
	case 1:
		return int(b[0]) - 128
	case 2:
		return int(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int(int32(binary.LittleEndian.Uint32(b)))
	}
	return 0
}

func encodeValue(b []byte, width, v int) {
	switch width {
	case 1:
		b[0] = byte(clamp(v, -128, 127) + 128)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(int16(clamp(v, math.MinInt16, math.MaxInt16))))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(int32(clamp(v, math.MinInt32, math.MaxInt32))))
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
