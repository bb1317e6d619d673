package audio_test

import (
	"testing"

	"github.com/MrWong99/murmur/pkg/audio"
)

func TestConvert_MonoToStereo(t *testing.T) {
	t.Parallel()
	stereo := audio.Format{SampleRate: 16000, Channels: 2, SampleWidth: 2}
	got, err := audio.FromInt16([]int16{100, 200, 300}, mono16k).Convert(stereo)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []int{100, 100, 200, 200, 300, 300}
	assertInts(t, got.Ints(), want)
}

func TestConvert_StereoToMono(t *testing.T) {
	t.Parallel()
	stereo := audio.Format{SampleRate: 16000, Channels: 2, SampleWidth: 2}
	got, err := audio.FromInt16([]int16{100, 200, -100, -200}, stereo).Convert(mono16k)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	assertInts(t, got.Ints(), []int{150, -150})
}

func TestConvert_StereoToMonoNoOverflow(t *testing.T) {
	t.Parallel()
	stereo := audio.Format{SampleRate: 16000, Channels: 2, SampleWidth: 2}
	got, err := audio.FromInt16([]int16{32767, 32767}, stereo).Convert(mono16k)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	assertInts(t, got.Ints(), []int{32767})
}

func TestConvert_Downsample(t *testing.T) {
	t.Parallel()
	target := mono16k
	target.SampleRate = 8000
	got, err := ramp(1600).Convert(target)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got.NFrames() != 800 {
		t.Errorf("NFrames = %d, want 800", got.NFrames())
	}
	if got.Duration() != ramp(1600).Duration() {
		t.Errorf("Duration = %v, want %v", got.Duration(), ramp(1600).Duration())
	}
}

func TestConvert_48kStereoTo16kMono(t *testing.T) {
	t.Parallel()
	src := audio.Format{SampleRate: 48000, Channels: 2, SampleWidth: 2}
	in := audio.FromInt16(make([]int16, 960*2), src)
	got, err := in.Convert(mono16k)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got.Format() != mono16k {
		t.Errorf("Format = %s, want %s", got.Format(), mono16k)
	}
	if got.NFrames() != 320 {
		t.Errorf("NFrames = %d, want 320", got.NFrames())
	}
}

func TestConvert_Width(t *testing.T) {
	t.Parallel()
	eight := mono16k
	eight.SampleWidth = 1
	got, err := audio.FromInt16([]int16{256, -512}, mono16k).Convert(eight)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	assertInts(t, got.Ints(), []int{1, -2})
}

func TestConvert_SameFormatUnchanged(t *testing.T) {
	t.Parallel()
	in := ramp(10)
	got, err := in.Convert(mono16k)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !got.Equal(in) {
		t.Error("same-format conversion changed the sample")
	}
}

func TestConverter_RejectsInvalidTarget(t *testing.T) {
	t.Parallel()
	c := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1, SampleWidth: 3}}
	if _, err := c.Convert(ramp(4)); err == nil {
		t.Error("expected error for 24-bit target")
	}
}

func assertInts(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %d, want %d", i, got[i], want[i])
		}
	}
}
