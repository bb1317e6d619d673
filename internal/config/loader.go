package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/murmur/pkg/listener"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "deepgram", "openai"},
	"vad": {"rms"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":9090"
	DefaultSampleRate    = 16000
	DefaultTotalDuration = 5 * time.Second
	DefaultRecorderDir   = "sessions"
	DefaultMouseBackend  = "xdotool"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFs] on the OS file system.
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads the YAML configuration file at path on fs.
func LoadFs(fs afero.Fs, path string) (*Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Audio.Source == "" {
		cfg.Audio.Source = SourceMicrophone
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.ChunkSize == 0 {
		cfg.Audio.ChunkSize = listener.DefaultChunkSize
	}

	l := &cfg.Listener
	if l.Labeler == "" {
		l.Labeler = LabelerSilence
	}
	if l.SilenceThresholdRMS == 0 {
		l.SilenceThresholdRMS = listener.DefaultSilenceThreshold
	}
	if l.TotalDuration == 0 {
		l.TotalDuration = DefaultTotalDuration
	}
	if l.FluxRatio == 0 {
		l.FluxRatio = listener.DefaultFluxRatio
	}
	if l.StopFrame == "" {
		l.StopFrame = StopFrameInclude
	}
	if l.FrameFilter == "" {
		l.FrameFilter = FilterSpeech
	}
	if l.VAD.SpeechThreshold == 0 {
		l.VAD.SpeechThreshold = listener.DefaultSilenceThreshold
	}
	if l.VAD.SilenceThreshold == 0 {
		l.VAD.SilenceThreshold = l.VAD.SpeechThreshold * 0.6
	}

	if cfg.Actions.Recorder.Dir == "" {
		cfg.Actions.Recorder.Dir = DefaultRecorderDir
	}
	if cfg.Actions.Mouse.Backend == "" {
		cfg.Actions.Mouse.Backend = DefaultMouseBackend
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if !cfg.Audio.Source.IsValid() {
		errs = append(errs, fmt.Errorf("audio.source %q is invalid; valid values: microphone, wav, mp3", cfg.Audio.Source))
	}
	if (cfg.Audio.Source == SourceWAV || cfg.Audio.Source == SourceMP3) && cfg.Audio.Path == "" {
		errs = append(errs, fmt.Errorf("audio.path is required when source is %s", cfg.Audio.Source))
	}
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must be positive", cfg.Audio.ChunkSize))
	}

	// Listener
	l := cfg.Listener
	if !l.Labeler.IsValid() {
		errs = append(errs, fmt.Errorf("listener.labeler %q is invalid; valid values: silence, time, flux, vad", l.Labeler))
	}
	if l.SilenceThresholdRMS < 0 {
		errs = append(errs, fmt.Errorf("listener.silence_threshold_rms %.1f must not be negative", l.SilenceThresholdRMS))
	}
	if l.TotalDuration < 0 {
		errs = append(errs, fmt.Errorf("listener.total_duration %s must not be negative", l.TotalDuration))
	}
	if l.FluxRatio != 0 && l.FluxRatio <= 1 {
		errs = append(errs, fmt.Errorf("listener.flux_ratio %.2f must be greater than 1", l.FluxRatio))
	}
	if l.StopFrame != "" && !l.StopFrame.IsValid() {
		errs = append(errs, fmt.Errorf("listener.stop_frame %q is invalid; valid values: include, exclude", l.StopFrame))
	}
	if l.FrameFilter != "" && !l.FrameFilter.IsValid() {
		errs = append(errs, fmt.Errorf("listener.frame_filter %q is invalid; valid values: speech, lead_in", l.FrameFilter))
	}
	if l.VAD.SilenceThreshold > l.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("listener.vad.silence_threshold %.1f exceeds speech_threshold %.1f", l.VAD.SilenceThreshold, l.VAD.SpeechThreshold))
	}
	if l.Labeler == LabelerVAD && cfg.Providers.VAD.Name == "" {
		errs = append(errs, errors.New("listener: labeler \"vad\" requires providers.vad to be configured"))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.WakeSTT.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}

	// Actions
	if th := cfg.Actions.Triggers.FuzzyThreshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("actions.triggers.fuzzy_threshold %.2f is out of range [0, 1]", th))
	}
	if cfg.Actions.Recorder.IsEnabled() && cfg.Actions.Recorder.Dir == "" {
		errs = append(errs, errors.New("actions.recorder.dir is required when the recorder is enabled"))
	}
	if cfg.Actions.Mouse.IsEnabled() && cfg.Actions.Mouse.Backend != "" && cfg.Actions.Mouse.Backend != DefaultMouseBackend {
		errs = append(errs, fmt.Errorf("actions.mouse.backend %q is invalid; valid values: %s", cfg.Actions.Mouse.Backend, DefaultMouseBackend))
	}
	if cfg.Actions.Control.IsEnabled() && cfg.Providers.WakeSTT.Name == "" {
		slog.Warn("providers.wake_stt is not configured; \"go to sleep\" will be ignored")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
