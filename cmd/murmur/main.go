// Command murmur listens for spoken commands and dispatches them to actions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/murmur/internal/actions/mouse"
	"github.com/MrWong99/murmur/internal/app"
	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/resilience"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/file"
	"github.com/MrWong99/murmur/pkg/audio/mic"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	"github.com/MrWong99/murmur/pkg/provider/stt/deepgram"
	"github.com/MrWong99/murmur/pkg/provider/stt/openai"
	"github.com/MrWong99/murmur/pkg/provider/stt/whisper"
	"github.com/MrWong99/murmur/pkg/provider/vad"
	"github.com/MrWong99/murmur/pkg/provider/vad/rms"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "murmur.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "murmur: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("murmur starting",
		"config", *configPath,
		"source", cfg.Audio.Source,
		"labeler", cfg.Listener.Labeler,
		"listen_addr", cfg.Server.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "murmur"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, closeProviders, err := buildProviders(ctx, cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders()

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithLevelVar(level),
		app.WithMetricsHandler(tel.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(r config.Reload) {
			application.ApplyDiff(r.Diff)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
			go reloadOnHangup(ctx, w)
		}
	}

	slog.Info("listening for commands, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath, _ = entry.OptionString("model_path")
		}
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org, ok := entry.OptionString("organization"); ok {
			opts = append(opts, openai.WithOrganization(org))
		}
		if n, ok := entry.OptionInt("max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		model := entry.Model
		if model == "" {
			model = openai.DefaultModel
		}
		return openai.New(entry.APIKey, model, opts...)
	})

	reg.RegisterVAD("rms", func(config.ProviderEntry) (vad.Engine, error) {
		return rms.Engine{}, nil
	})

	slog.Debug("registered providers", "stt", reg.STTNames())
}

// buildProviders instantiates everything cfg names. The returned func closes
// whatever holds resources; on error everything is already closed.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, func(), error) {
	ps := &app.Providers{}
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
	track := func(v any) {
		if c, ok := v.(interface{ Close() error }); ok {
			closers = append(closers, c.Close)
		}
	}

	// ── STT with failover ─────────────────────────────────────────────────────
	breaker := resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("stt backend state changed", "backend", name, "from", from, "to", to)
			metrics.RecordBreakerTransition(ctx, name, to.String())
		},
	}
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	track(primary)
	resilient := resilience.NewTranscriber(primary, cfg.Providers.STT.Name, resilience.FallbackConfig{CircuitBreaker: breaker})
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	for _, fb := range cfg.Providers.STTFallbacks {
		t, err := reg.CreateSTT(fb)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		track(t)
		resilient.AddFallback(fb.Name, t)
		slog.Info("provider created", "kind", "stt-fallback", "name", fb.Name)
	}
	ps.STT = resilient

	if name := cfg.Providers.WakeSTT.Name; name != "" {
		t, err := reg.CreateSTT(cfg.Providers.WakeSTT)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create wake stt %q: %w", name, err)
		}
		track(t)
		ps.WakeSTT = t
		slog.Info("provider created", "kind", "wake-stt", "name", name)
	}

	if name := cfg.Providers.VAD.Name; name != "" {
		e, err := reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create vad provider %q: %w", name, err)
		}
		ps.VAD = e
		slog.Info("provider created", "kind", "vad", "name", name)
	}

	// ── Audio source ──────────────────────────────────────────────────────────
	src, err := openSource(cfg.Audio)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	track(src)
	ps.Source = src

	// ── Screen ────────────────────────────────────────────────────────────────
	if cfg.Actions.Mouse.IsEnabled() {
		x, err := mouse.NewXdotool()
		if err != nil {
			slog.Warn("mouse backend unavailable", "backend", cfg.Actions.Mouse.Backend, "err", err)
		} else {
			ps.Screen = x
		}
	}

	return ps, closeAll, nil
}

func openSource(ac config.AudioConfig) (audio.Source, error) {
	switch ac.Source {
	case config.SourceWAV, config.SourceMP3:
		src, err := file.Open(afero.NewOsFs(), ac.Path)
		if err != nil {
			return nil, fmt.Errorf("open audio file: %w", err)
		}
		return src, nil
	default:
		format := audio.DefaultFormat
		format.SampleRate = ac.SampleRate
		src, err := mic.Open(mic.Config{DeviceIndex: ac.DeviceIndex, Format: format})
		if err != nil {
			return nil, fmt.Errorf("open microphone: %w", err)
		}
		return src, nil
	}
}

// reloadOnHangup re-checks the config file on SIGHUP instead of waiting for
// the next poll.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if !w.Check() {
				slog.Info("config: SIGHUP received, no effective change")
			}
		}
	}
}
