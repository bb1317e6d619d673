package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Converter converts samples to a target format. It logs a warning on the
// first format mismatch so a misconfigured source shows up once in the logs
// rather than on every frame.
// Create one per stream; not designed for shared use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert returns s in the converter's target format. Samples already in the
// target format are returned unchanged.
func (c *Converter) Convert(s Sample) (Sample, error) {
	if s.format == c.Target {
		return s, nil
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio converter: format mismatch, converting",
			"from", s.format.String(),
			"to", c.Target.String(),
		)
	})
	return s.Convert(c.Target)
}

// Convert changes the sample rate, channel count and sample width of s.
//
// Conversion order: channel remix first (downmixing before resampling keeps
// the interpolation cheap), then resample, then width. Upmixing duplicates
// the mono signal; downmixing averages all channels; remixing between two
// multi-channel layouts goes through mono.
func (s Sample) Convert(target Format) (Sample, error) {
	if err := target.Validate(); err != nil {
		return Sample{}, fmt.Errorf("audio: convert: %w", err)
	}
	if err := s.format.Validate(); err != nil {
		return Sample{}, fmt.Errorf("audio: convert source: %w", err)
	}
	if s.format == target {
		return s, nil
	}

	vals := s.Ints()
	ch := s.format.Channels

	if ch != target.Channels {
		if ch != 1 {
			vals = downmix(vals, ch)
			ch = 1
		}
		if target.Channels != 1 {
			vals = upmix(vals, target.Channels)
			ch = target.Channels
		}
	}

	if s.format.SampleRate != target.SampleRate {
		vals = resample(vals, ch, s.format.SampleRate, target.SampleRate)
	}

	if shift := (target.SampleWidth - s.format.SampleWidth) * 8; shift != 0 {
		for i, v := range vals {
			if shift > 0 {
				vals[i] = v << shift
			} else {
				vals[i] = v >> -shift
			}
		}
	}

	w := target.SampleWidth
	out := make([]byte, len(vals)*w)
	for i, v := range vals {
		encodeValue(out[i*w:], w, v)
	}
	return Sample{data: out, format: target}, nil
}

func downmix(vals []int, channels int) []int {
	frames := len(vals) / channels
	out := make([]int, frames)
	for i := range frames {
		var sum int
		for c := range channels {
			sum += vals[i*channels+c]
		}
		out[i] = sum / channels
	}
	return out
}

func upmix(mono []int, channels int) []int {
	out := make([]int, len(mono)*channels)
	for i, v := range mono {
		for c := range channels {
			out[i*channels+c] = v
		}
	}
	return out
}

// resample converts interleaved values from srcRate to dstRate using linear
// interpolation per channel.
func resample(vals []int, channels, srcRate, dstRate int) []int {
	srcFrames := len(vals) / channels
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range channels {
			v0 := float64(vals[idx*channels+c])
			v1 := float64(vals[next*channels+c])
			out[i*channels+c] = int(v0*(1-frac) + v1*frac)
		}
	}
	return out
}
