// Package app wires the murmur subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the listener, the
// dispatcher and its actions, Run captures and dispatches until the audio
// ends or the context is cancelled, and Shutdown tears everything down in
// order.
//
// Providers are built by main.go through the config registry; tests inject
// mocks the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/murmur/internal/actions/control"
	"github.com/MrWong99/murmur/internal/actions/mouse"
	"github.com/MrWong99/murmur/internal/actions/recorder"
	"github.com/MrWong99/murmur/internal/actions/trigger"
	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/dispatch"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/listener"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// shutdownGrace bounds the HTTP server drain once Run ends.
const shutdownGrace = 5 * time.Second

// Providers holds the externally constructed backends. STT and Source are
// required; the rest are optional.
type Providers struct {
	// STT recognises commands while awake.
	STT stt.Transcriber

	// WakeSTT recognises "wake up" while asleep. Nil disables sleeping.
	WakeSTT stt.Transcriber

	// VAD backs the vad labeler.
	VAD vad.Engine

	// Source delivers the captured audio.
	Source audio.Source

	// Screen drives the pointer. Nil leaves the mouse action unregistered.
	Screen mouse.Screen
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	fs          afero.Fs
	metrics     *observe.Metrics
	level       *slog.LevelVar
	metricsHTTP http.Handler

	background *listener.Background
	dispatcher *dispatch.Dispatcher
	controller *control.Controller
	recorder   *recorder.Recorder
	mouse      *mouse.Action
	worker     *mouse.Worker

	// addr is the bound HTTP address once Run is serving.
	addrMu sync.Mutex
	addr   net.Addr

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithFs sets the file system used for audio files and session recordings.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets hot reloads change the log level through lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHTTP = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and providers. Nothing is captured until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: an stt provider is required")
	}
	if providers.Source == nil {
		return nil, errors.New("app: an audio source is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		fs:        afero.NewOsFs(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Listener ──────────────────────────────────────────────────────
	l, err := a.buildListener()
	if err != nil {
		return nil, fmt.Errorf("app: build listener: %w", err)
	}
	a.background = listener.NewBackground(l)

	// ── 2. Dispatcher ────────────────────────────────────────────────────
	a.dispatcher = dispatch.New(a.background, providers.STT,
		dispatch.WithMetrics(a.metrics),
		dispatch.WithTranscribeOptions(stt.Options{Language: cfg.Providers.STT.Language}),
	)

	// ── 3. Actions, in priority order ────────────────────────────────────
	a.initActions(ctx)

	return a, nil
}

func (a *App) buildListener() (*listener.Listener, error) {
	lc := a.cfg.Listener

	var labeler listener.Labeler
	switch lc.Labeler {
	case config.LabelerTime:
		labeler = listener.TimeBased{Total: lc.TotalDuration}
	case config.LabelerFlux:
		labeler = &listener.Flux{Ratio: lc.FluxRatio}
	case config.LabelerVAD:
		if a.providers.VAD == nil {
			return nil, errors.New("labeler vad requires a vad provider")
		}
		sess, err := a.providers.VAD.NewSession(vad.Config{
			SampleRate:       a.providers.Source.Format().SampleRate,
			SpeechThreshold:  lc.VAD.SpeechThreshold,
			SilenceThreshold: lc.VAD.SilenceThreshold,
			OnsetFrames:      lc.VAD.OnsetFrames,
			HangoverFrames:   lc.VAD.HangoverFrames,
		})
		if err != nil {
			return nil, fmt.Errorf("vad session: %w", err)
		}
		a.closers = append(a.closers, sess.Close)
		labeler = listener.VAD{Session: sess}
	default:
		labeler = listener.SilenceBased{ThresholdRMS: lc.SilenceThresholdRMS}
	}

	opts := []listener.Option{listener.WithChunkSize(a.cfg.Audio.ChunkSize)}
	if lc.StopFrame == config.StopFrameExclude {
		opts = append(opts, listener.WithStopFrame(listener.StopFrameExclude))
	}
	if lc.FrameFilter == config.FilterLeadIn {
		opts = append(opts, listener.WithFrameFilter(listener.KeepSpeechLeadIn))
	}
	if lc.RemoveDCOffset {
		opts = append(opts, listener.WithPreFilter(listener.RemoveDCOffset))
	}

	slog.Info("app: listener configured",
		"labeler", lc.Labeler,
		"format", a.providers.Source.Format(),
		"chunk_size", a.cfg.Audio.ChunkSize,
	)
	return listener.New(a.providers.Source, labeler, opts...), nil
}

func (a *App) initActions(ctx context.Context) {
	acfg := a.cfg.Actions

	a.controller = control.New(a.dispatcher, a.providers.WakeSTT,
		trigger.WithFuzzyMatch(acfg.Triggers.FuzzyThreshold))
	a.controller.SetEnabled(acfg.Control.IsEnabled())
	a.dispatcher.RegisterAction(a.controller)

	a.recorder = recorder.New(a.dispatcher, acfg.Recorder.Dir, recorder.WithFs(a.fs))
	a.recorder.SetEnabled(acfg.Recorder.IsEnabled())
	a.dispatcher.RegisterAction(a.recorder)

	if a.providers.Screen != nil {
		a.worker = mouse.NewWorker(a.providers.Screen)
		a.mouse = mouse.New(a.worker)
		a.mouse.SetEnabled(acfg.Mouse.IsEnabled())
		a.dispatcher.RegisterAction(a.mouse)
		a.closers = append(a.closers, func() error {
			a.worker.Stop()
			return nil
		})
	} else if acfg.Mouse.IsEnabled() {
		slog.Warn("app: no screen backend available, mouse commands are ignored")
	}

	names := make([]string, 0, 3)
	for _, act := range a.dispatcher.Actions() {
		names = append(names, act.Name())
	}
	slog.InfoContext(ctx, "app: actions registered", "actions", names)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Recorder returns the session recorder action.
func (a *App) Recorder() *recorder.Recorder { return a.recorder }

// Controller returns the stop/sleep/wake action.
func (a *App) Controller() *control.Controller { return a.controller }

// Addr returns the bound HTTP address, or nil when not serving.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// Status snapshots the dispatcher for /statusz.
func (a *App) Status() health.Status {
	st := health.Status{
		Listening: a.background.IsListening(),
		Queued:    a.background.Len(),
		Asleep:    a.controller.Asleep(),
		Recording: a.recorder.Recording(),
	}
	if f := a.dispatcher.Focus(); f != nil {
		st.Focus = f.Name()
	}
	for _, act := range a.dispatcher.Actions() {
		st.Actions = append(st.Actions, health.ActionStatus{Name: act.Name(), Enabled: act.Enabled()})
	}
	return st
}

// Handler returns the HTTP surface: health, status and, when configured,
// Prometheus metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	health.New(a.Status,
		health.Listening("listener", func() health.CaptureState { return a.background }),
	).Register(mux)
	if a.metricsHTTP != nil {
		mux.Handle("GET /metrics", a.metricsHTTP)
	}
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run captures and dispatches until the audio source is exhausted or ctx is
// cancelled. The HTTP endpoint, if configured, is served for the duration.
// Cancellation is not an error; action and listener failures are.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.worker != nil {
		if err := a.worker.Start(gctx); err != nil {
			return fmt.Errorf("app: start mouse worker: %w", err)
		}
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		a.addrMu.Lock()
		a.addr = ln.Addr()
		a.addrMu.Unlock()

		srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer scancel()
			return srv.Shutdown(sctx)
		})
		slog.Info("app: serving health and metrics", "addr", ln.Addr().String())
	}

	g.Go(func() error {
		// Exhausted audio ends the whole run.
		defer cancel()
		return a.dispatcher.Run(gctx)
	})

	slog.Info("app running", "actions", len(a.dispatcher.Actions()))
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyDiff applies the hot-reloadable part of a config change and logs the
// rest.
func (a *App) ApplyDiff(d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	for _, tg := range d.Toggles {
		act, ok := a.actionFor(tg.Action)
		if !ok {
			continue
		}
		act.SetEnabled(tg.Enabled)
		slog.Info("app: action toggled", "action", act.Name(), "enabled", tg.Enabled)
	}
	if d.FuzzyThresholdChanged {
		a.controller.SetFuzzyThreshold(d.NewFuzzyThreshold)
		slog.Info("app: fuzzy threshold changed", "threshold", d.NewFuzzyThreshold)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

type toggler interface {
	Name() string
	SetEnabled(bool)
}

func (a *App) actionFor(key string) (toggler, bool) {
	switch key {
	case "control":
		return a.controller, true
	case "recorder":
		return a.recorder, true
	case "mouse":
		if a.mouse != nil {
			return a.mouse, true
		}
	}
	return nil, false
}

// SlogLevel maps a config level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture and runs the closers in order. It respects the
// context deadline: remaining closers are skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.dispatcher.StopListening()
		if a.recorder.Recording() {
			slog.Warn("app: recording session discarded on shutdown")
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
