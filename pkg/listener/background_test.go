package listener_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/mock"
	"github.com/MrWong99/murmur/pkg/listener"
)

// uttererFunc adapts a function to listener.Utterer.
type uttererFunc func(ctx context.Context) (audio.Sample, error)

func (f uttererFunc) Listen(ctx context.Context) (audio.Sample, error) { return f(ctx) }

// scripted returns utterances in order and then reports end of stream.
func scripted(samples ...audio.Sample) listener.Utterer {
	var (
		mu  sync.Mutex
		pos int
	)
	return uttererFunc(func(context.Context) (audio.Sample, error) {
		mu.Lock()
		defer mu.Unlock()
		if pos >= len(samples) {
			return audio.Sample{}, audio.ErrEndOfStream
		}
		s := samples[pos]
		pos++
		return s, nil
	})
}

// blocking waits for the context to end.
func blocking() listener.Utterer {
	return uttererFunc(func(ctx context.Context) (audio.Sample, error) {
		<-ctx.Done()
		return audio.Sample{}, ctx.Err()
	})
}

func waitDone(t *testing.T, b *listener.Background) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("background loop did not exit")
	}
}

func TestBackground_QueuesInOrderUntilEndOfStream(t *testing.T) {
	t.Parallel()
	a := mock.Tone(100, 10, audio.DefaultFormat)
	b := mock.Tone(200, 20, audio.DefaultFormat)
	c := mock.Tone(300, 30, audio.DefaultFormat)
	bg := listener.NewBackground(scripted(a, b, c))

	if err := bg.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, bg)

	if bg.IsListening() {
		t.Error("IsListening = true after end of stream")
	}
	if bg.Err() != nil {
		t.Errorf("Err = %v, want nil after end of stream", bg.Err())
	}
	if bg.Len() != 3 {
		t.Fatalf("Len = %d, want 3", bg.Len())
	}
	for i, want := range []audio.Sample{a, b, c} {
		got, err := bg.Get(context.Background())
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if !got.Equal(want) {
			t.Errorf("Get %d returned the wrong utterance", i)
		}
	}
	if _, err := bg.Get(context.Background()); !errors.Is(err, listener.ErrClosed) {
		t.Errorf("Get on drained queue = %v, want ErrClosed", err)
	}
	if !bg.Empty() {
		t.Error("Empty = false after draining")
	}
}

func TestBackground_StartTwice(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bg := listener.NewBackground(blocking())

	if err := bg.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := bg.Start(ctx); !errors.Is(err, listener.ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
	// Stop was requested but the loop is still blocked in Listen.
	if bg.Stop(10 * time.Millisecond) {
		t.Error("Stop reported termination while Listen is blocked")
	}
	if err := bg.Start(ctx); !errors.Is(err, listener.ErrAlreadyRunning) {
		t.Errorf("Start while stopping = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	waitDone(t, bg)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	if err := bg.Start(ctx2); err != nil {
		t.Errorf("restart after exit: %v", err)
	}
	bg.Stop(0)
}

func TestBackground_StopIsCooperative(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var (
		mu    sync.Mutex
		calls int
	)
	u := uttererFunc(func(context.Context) (audio.Sample, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		entered <- struct{}{}
		<-release
		return quiet, nil
	})
	bg := listener.NewBackground(u)
	if err := bg.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !bg.IsListening() {
		t.Error("IsListening = false right after Start")
	}
	<-entered

	// Request the stop while Listen is blocked, then let it return.
	bg.Stop(0)
	if bg.IsListening() {
		t.Error("IsListening = true after Stop")
	}
	close(release)

	if !bg.Stop(2 * time.Second) {
		t.Fatal("Stop timed out")
	}
	// The utterance in progress when Stop was called is still delivered.
	if bg.Len() != 1 {
		t.Errorf("Len = %d, want 1", bg.Len())
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("Listen calls = %d, want 1", calls)
	}
}

func TestBackground_StopWithoutWaiting(t *testing.T) {
	t.Parallel()
	bg := listener.NewBackground(blocking())
	if !bg.Stop(0) {
		t.Error("Stop on never-started listener = false")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bg.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !bg.Stop(0) {
		t.Error("Stop(0) = false, want true without waiting")
	}
	cancel()
	waitDone(t, bg)
}

func TestBackground_ErrorStopsLoop(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	bg := listener.NewBackground(uttererFunc(func(context.Context) (audio.Sample, error) {
		return audio.Sample{}, boom
	}))
	if err := bg.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, bg)
	if !errors.Is(bg.Err(), boom) {
		t.Errorf("Err = %v, want %v", bg.Err(), boom)
	}
	if bg.IsListening() {
		t.Error("IsListening = true after failure")
	}
}

func TestBackground_GetBlocksUntilUtterance(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	want := mock.Tone(700, 50, audio.DefaultFormat)
	var once sync.Once
	bg := listener.NewBackground(uttererFunc(func(ctx context.Context) (audio.Sample, error) {
		first := false
		once.Do(func() { first = true })
		if !first {
			<-ctx.Done()
			return audio.Sample{}, ctx.Err()
		}
		<-release
		return want, nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bg.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got := make(chan audio.Sample, 1)
	go func() {
		s, err := bg.Get(context.Background())
		if err == nil {
			got <- s
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Get returned before an utterance was queued")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case s, ok := <-got:
		if !ok || !s.Equal(want) {
			t.Error("Get did not return the queued utterance")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not unblock")
	}
}

func TestBackground_GetHonoursContext(t *testing.T) {
	t.Parallel()
	loopCtx, stop := context.WithCancel(context.Background())
	defer stop()
	bg := listener.NewBackground(blocking())
	if err := bg.Start(loopCtx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := bg.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestBackground_WithListener(t *testing.T) {
	t.Parallel()
	l := listener.New(scenario(), listener.SilenceBased{ThresholdRMS: 500}, listener.WithChunkSize(chunk))
	bg := listener.NewBackground(l)
	if err := bg.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, bg)

	first, err := bg.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertIndices(t, frameIndices(t, first), []int{5, 6, 7, 8})

	// Frame 9 is a lone quiet frame before end of stream: an empty utterance.
	second, err := bg.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !second.IsEmpty() {
		t.Errorf("second utterance has %d frames, want 0", second.NFrames())
	}
}
