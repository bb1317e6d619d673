package listener_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/mock"
	"github.com/MrWong99/murmur/pkg/listener"
)

// numbered returns a chunk whose first value encodes idx so tests can tell
// which source frames ended up in an utterance.
func numbered(idx int, amplitude int16) audio.Sample {
	vals := make([]int16, chunk)
	for i := range vals {
		if i%2 == 0 {
			vals[i] = amplitude
		} else {
			vals[i] = -amplitude
		}
	}
	vals[0] = int16(idx)
	return audio.FromInt16(vals, audio.DefaultFormat)
}

// scenario is 5 quiet frames, 3 loud frames and 2 quiet frames followed by
// end of stream.
func scenario() *mock.Source {
	src := &mock.Source{SourceFormat: audio.DefaultFormat}
	for i := range 10 {
		amp := int16(100)
		if i >= 5 && i < 8 {
			amp = 2000
		}
		src.Frames = append(src.Frames, numbered(i, amp))
	}
	return src
}

func frameIndices(t *testing.T, s audio.Sample) []int {
	t.Helper()
	if s.NFrames()%chunk != 0 {
		t.Fatalf("utterance has %d frames, not a whole number of chunks", s.NFrames())
	}
	vals := s.Ints()
	var idx []int
	for off := 0; off < len(vals); off += chunk {
		idx = append(idx, vals[off])
	}
	return idx
}

func assertIndices(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

func TestListener_SpeechScenario(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		opts []listener.Option
		want []int
	}{
		{
			name: "keep speech with trailing stop frame",
			want: []int{5, 6, 7, 8},
		},
		{
			name: "lead-in keeps the last silent frame before speech",
			opts: []listener.Option{listener.WithFrameFilter(listener.KeepSpeechLeadIn)},
			want: []int{4, 5, 6, 7, 8},
		},
		{
			name: "stop frame excluded",
			opts: []listener.Option{listener.WithStopFrame(listener.StopFrameExclude)},
			want: []int{5, 6, 7},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := scenario()
			opts := append([]listener.Option{listener.WithChunkSize(chunk)}, tc.opts...)
			l := listener.New(src, listener.SilenceBased{ThresholdRMS: 500}, opts...)

			got, err := l.Listen(context.Background())
			if err != nil {
				t.Fatalf("Listen: %v", err)
			}
			assertIndices(t, frameIndices(t, got), tc.want)
			if src.CallCount() != 9 {
				t.Errorf("source reads = %d, want 9 (stop at frame 8)", src.CallCount())
			}
		})
	}
}

func TestListener_DurationMatchesKeptFrames(t *testing.T) {
	t.Parallel()
	l := listener.New(scenario(), listener.SilenceBased{ThresholdRMS: 500})

	frames, err := l.ListenFrames(context.Background())
	if err != nil {
		t.Fatalf("ListenFrames: %v", err)
	}
	var want time.Duration
	for _, f := range listener.KeepSpeech(frames) {
		want += f.Frame.Duration()
	}
	joined, err := listener.JoinFrames(audio.DefaultFormat, listener.KeepSpeech(frames))
	if err != nil {
		t.Fatalf("JoinFrames: %v", err)
	}
	if joined.Duration() != want {
		t.Errorf("Duration = %v, want %v", joined.Duration(), want)
	}
}

func TestListener_ChunkSizeRequested(t *testing.T) {
	t.Parallel()
	src := scenario()
	l := listener.New(src, listener.SilenceBased{ThresholdRMS: 500}, listener.WithChunkSize(321))
	if _, err := l.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	for i, n := range src.ReadRequests {
		if n != 321 {
			t.Errorf("read %d requested %d frames, want 321", i, n)
		}
	}
}

func TestListener_DefaultChunkSize(t *testing.T) {
	t.Parallel()
	src := scenario()
	if _, err := listener.New(src, listener.SilenceBased{ThresholdRMS: 500}).Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if src.ReadRequests[0] != 16384 {
		t.Errorf("chunk size = %d, want 16384", src.ReadRequests[0])
	}
}

func TestListener_AllSilenceEndsOnlyAtEndOfStream(t *testing.T) {
	t.Parallel()
	src := &mock.Source{SourceFormat: audio.DefaultFormat}
	for range 6 {
		src.Frames = append(src.Frames, quiet)
	}
	l := listener.New(src, listener.SilenceBased{ThresholdRMS: 500})

	frames, err := l.ListenFrames(context.Background())
	if err != nil {
		t.Fatalf("ListenFrames: %v", err)
	}
	if len(frames) != 6 {
		t.Fatalf("frames = %d, want 6", len(frames))
	}
	for i, f := range frames {
		if f.State == listener.Stop {
			t.Errorf("frame %d labelled STOP in all-silence input", i)
		}
	}

	got, err := listener.New(&mock.Source{SourceFormat: audio.DefaultFormat, Frames: src.Frames},
		listener.SilenceBased{ThresholdRMS: 500}).Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if !got.IsEmpty() || got.Format() != audio.DefaultFormat {
		t.Errorf("all-silence utterance = %d frames in %s, want empty in %s", got.NFrames(), got.Format(), audio.DefaultFormat)
	}
}

func TestListener_EndOfStreamWithNoFrames(t *testing.T) {
	t.Parallel()
	l := listener.New(&mock.Source{SourceFormat: audio.DefaultFormat}, listener.SilenceBased{ThresholdRMS: 500})
	if _, err := l.Listen(context.Background()); !errors.Is(err, audio.ErrEndOfStream) {
		t.Errorf("err = %v, want ErrEndOfStream", err)
	}
}

func TestListener_EndOfStreamOverridesLabeler(t *testing.T) {
	t.Parallel()
	src := &mock.Source{SourceFormat: audio.DefaultFormat, Frames: []audio.Sample{loud, loud}}
	l := listener.New(src, listener.SilenceBased{ThresholdRMS: 500})
	got, err := l.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if got.NFrames() != 2*chunk {
		t.Errorf("NFrames = %d, want %d", got.NFrames(), 2*chunk)
	}
}

func TestListener_ReadErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("device unplugged")
	src := &mock.Source{
		SourceFormat: audio.DefaultFormat,
		Frames:       []audio.Sample{loud},
		Errors:       []error{nil, boom},
	}
	_, err := listener.New(src, listener.SilenceBased{ThresholdRMS: 500}).Listen(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestListener_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := listener.New(scenario(), listener.SilenceBased{ThresholdRMS: 500}).Listen(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestListener_Filters(t *testing.T) {
	t.Parallel()
	var preCalls int
	pre := func(s audio.Sample) audio.Sample {
		preCalls++
		return s
	}
	post := func(s audio.Sample) audio.Sample {
		return s.SliceFrames(0, 10)
	}
	l := listener.New(scenario(), listener.SilenceBased{ThresholdRMS: 500},
		listener.WithChunkSize(chunk),
		listener.WithPreFilter(pre),
		listener.WithPostFilter(post),
	)
	got, err := l.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if preCalls != 9 {
		t.Errorf("pre-filter calls = %d, want 9", preCalls)
	}
	if got.NFrames() != 10 {
		t.Errorf("post-filtered NFrames = %d, want 10", got.NFrames())
	}
}

func TestListener_PreFilterFeedsLabeler(t *testing.T) {
	t.Parallel()
	// A large DC offset makes silence look loud until it is removed.
	offset := make([]int16, chunk)
	for i := range offset {
		offset[i] = 3000
	}
	biased := audio.FromInt16(offset, audio.DefaultFormat)
	src := &mock.Source{SourceFormat: audio.DefaultFormat, Frames: []audio.Sample{biased, biased}}

	l := listener.New(src, listener.SilenceBased{ThresholdRMS: 500}, listener.WithPreFilter(listener.RemoveDCOffset))
	frames, err := l.ListenFrames(context.Background())
	if err != nil {
		t.Fatalf("ListenFrames: %v", err)
	}
	for i, f := range frames {
		if f.State != listener.Pause {
			t.Errorf("frame %d = %s, want PAUSE", i, f.State)
		}
	}
}

func TestListener_TimeBased(t *testing.T) {
	t.Parallel()
	src := &mock.Source{SourceFormat: audio.DefaultFormat}
	for range 10 {
		src.Frames = append(src.Frames, quiet)
	}
	l := listener.New(src, listener.TimeBased{Total: 300 * time.Millisecond}, listener.WithChunkSize(chunk))
	got, err := l.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	// Two Listen frames plus the Stop frame kept by the lookback rule.
	if got.Duration() != 300*time.Millisecond {
		t.Errorf("Duration = %v, want 300ms", got.Duration())
	}
}

func TestKeepSpeech(t *testing.T) {
	t.Parallel()
	in := frames(listener.Pause, listener.Listen, listener.Pause, listener.Pause, listener.Listen, listener.Stop)
	if got := len(listener.KeepSpeech(in)); got != 4 {
		t.Errorf("kept %d frames, want 4", got)
	}
	if got := len(listener.KeepSpeech(nil)); got != 0 {
		t.Errorf("kept %d frames from nil, want 0", got)
	}
}
