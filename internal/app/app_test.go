package app_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/murmur/internal/actions/mouse"
	mousemock "github.com/MrWong99/murmur/internal/actions/mouse/mock"
	"github.com/MrWong99/murmur/internal/actions/recorder"
	"github.com/MrWong99/murmur/internal/app"
	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/dispatch"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/audio"
	sttmock "github.com/MrWong99/murmur/pkg/provider/stt/mock"
	vadmock "github.com/MrWong99/murmur/pkg/provider/vad/mock"
)

// testConfig splits audio into one-second utterances and keeps the HTTP
// endpoint off.
func testConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{STT: config.ProviderEntry{Name: "mock"}},
		Listener:  config.ListenerConfig{Labeler: config.LabelerTime, TotalDuration: time.Second},
		Audio:     config.AudioConfig{ChunkSize: 4000},
	}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = ""
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testProviders(texts ...string) *app.Providers {
	return &app.Providers{
		STT:    &sttmock.Transcriber{Texts: texts},
		Source: audio.NewSampleSource(audio.Silence(4*time.Second, audio.DefaultFormat)),
		Screen: mousemock.NewScreen(1920, 1080, mouse.Point{X: 400, Y: 300}),
	}
}

func newApp(t *testing.T, cfg *config.Config, p *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, p, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func actionNames(d *dispatch.Dispatcher) []string {
	var names []string
	for _, a := range d.Actions() {
		names = append(names, a.Name())
	}
	return names
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Error("expected error without stt provider")
	}
	p := testProviders()
	p.Source = nil
	if _, err := app.New(context.Background(), testConfig(), p); err == nil {
		t.Error("expected error without audio source")
	}
}

func TestNew_RegistersActionsInOrder(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), testProviders())

	got := actionNames(a.Dispatcher())
	want := []string{"controller", recorder.Name, mouse.Name}
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("actions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNew_NoScreenSkipsMouse(t *testing.T) {
	t.Parallel()
	p := testProviders()
	p.Screen = nil
	a := newApp(t, testConfig(), p)

	for _, name := range actionNames(a.Dispatcher()) {
		if name == mouse.Name {
			t.Error("mouse action registered without a screen")
		}
	}
}

func TestNew_DisabledFromConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	off := false
	cfg.Actions.Recorder.Enabled = &off
	a := newApp(t, testConfig(), testProviders())
	b := newApp(t, cfg, testProviders())

	if !a.Recorder().Enabled() {
		t.Error("recorder should be enabled by default")
	}
	if b.Recorder().Enabled() {
		t.Error("recorder should be disabled by config")
	}
}

func TestNew_VADLabeler(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Listener.Labeler = config.LabelerVAD

	p := testProviders()
	if _, err := app.New(context.Background(), cfg, p, app.WithMetrics(testMetrics(t))); err == nil {
		t.Error("expected error for vad labeler without engine")
	}

	p.VAD = &vadmock.Engine{}
	newApp(t, cfg, p)
}

// TestRun_RecordedMouseSession drives the whole pipeline: four one-second
// utterances, transcribed by script, recorded to an in-memory file system.
func TestRun_RecordedMouseSession(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	p := testProviders("record action", "move mouse left", "stop recording", "")
	a := newApp(t, testConfig(), p, app.WithFs(fs))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil once audio is exhausted", err)
	}

	files, err := afero.ReadDir(fs, config.DefaultRecorderDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("session files = %d, want 1", len(files))
	}
	entries, err := recorder.Load(fs, filepath.Join(config.DefaultRecorderDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want one", entries)
	}
	e := entries[0]
	if e.Text != "move mouse left" || e.Action == nil || *e.Action != mouse.Name || e.ProcessResult != dispatch.TextProcessed {
		t.Errorf("entry = %+v", e)
	}
	if a.Dispatcher().Focus() != nil {
		t.Errorf("focus = %v after session, want none", a.Dispatcher().Focus().Name())
	}
}

func TestRun_CancelIsNotAnError(t *testing.T) {
	t.Parallel()
	p := testProviders()
	p.Source = blockingSource{}
	a := newApp(t, testConfig(), p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHandler_Status(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), testProviders())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/statusz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st health.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Listening || st.Asleep || st.Recording || st.Focus != "" || len(st.Actions) != 3 {
		t.Errorf("status = %+v", st)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before Run = %d, want 503", rec.Code)
	}
}

func TestHandler_Metrics(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("murmur_up 1\n"))
	})
	a := newApp(t, testConfig(), testProviders(), app.WithMetricsHandler(metrics))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "murmur_up 1\n" {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestApplyDiff(t *testing.T) {
	t.Parallel()
	lv := new(slog.LevelVar)
	a := newApp(t, testConfig(), testProviders(), app.WithLevelVar(lv))

	old := testConfig()
	new := testConfig()
	off := false
	new.Server.LogLevel = config.LogDebug
	new.Actions.Mouse.Enabled = &off
	new.Actions.Triggers.FuzzyThreshold = 0.8

	a.ApplyDiff(config.Diff(old, new))

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	m, ok := a.Dispatcher().Action(mouse.Name)
	if !ok || m.Enabled() {
		t.Error("mouse should be disabled after reload")
	}
	// The new threshold lets a near miss reach the controller.
	act, res, err := a.Dispatcher().Dispatch(context.Background(), "go to slip")
	if err != nil || act == nil || act.Name() != "controller" || res.Process != dispatch.TextProcessed {
		t.Errorf("Dispatch(go to slip) = %v, %v, %v; want controller claim", act, res.Process, err)
	}
}

func TestApplyDiff_FuzzyOffByDefault(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), testProviders())

	act, res, err := a.Dispatcher().Dispatch(context.Background(), "go to slip")
	if err != nil || act != nil || res.Process != dispatch.TextNotProcessed {
		t.Errorf("Dispatch(go to slip) = %v, %v, %v; want unclaimed", act, res.Process, err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// blockingSource never produces audio.
type blockingSource struct{}

func (blockingSource) Read(ctx context.Context, _ int) (audio.Sample, error) {
	<-ctx.Done()
	return audio.Sample{}, ctx.Err()
}

func (blockingSource) Format() audio.Format { return audio.DefaultFormat }
