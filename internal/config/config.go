// Package config provides the configuration schema, loader, provider registry
// and hot-reload watcher for murmur.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// AudioSource selects where utterances are captured from.
type AudioSource string

const (
	SourceMicrophone AudioSource = "microphone"
	SourceWAV        AudioSource = "wav"
	SourceMP3        AudioSource = "mp3"
)

// IsValid reports whether s is a recognised audio source.
func (s AudioSource) IsValid() bool {
	switch s {
	case SourceMicrophone, SourceWAV, SourceMP3:
		return true
	}
	return false
}

// LabelerKind selects the frame state labeler that ends utterances.
type LabelerKind string

const (
	LabelerSilence LabelerKind = "silence"
	LabelerTime    LabelerKind = "time"
	LabelerFlux    LabelerKind = "flux"
	LabelerVAD     LabelerKind = "vad"
)

// IsValid reports whether k is a recognised labeler.
func (k LabelerKind) IsValid() bool {
	switch k {
	case LabelerSilence, LabelerTime, LabelerFlux, LabelerVAD:
		return true
	}
	return false
}

// StopFrame decides whether the frame that ends an utterance is kept.
type StopFrame string

const (
	StopFrameInclude StopFrame = "include"
	StopFrameExclude StopFrame = "exclude"
)

// IsValid reports whether s is a recognised stop-frame policy.
func (s StopFrame) IsValid() bool {
	return s == StopFrameInclude || s == StopFrameExclude
}

// FrameFilter selects which labelled frames form the utterance.
type FrameFilter string

const (
	// FilterSpeech keeps everything from the first speech frame on.
	FilterSpeech FrameFilter = "speech"

	// FilterLeadIn additionally keeps the last quiet frame before speech.
	FilterLeadIn FrameFilter = "lead_in"
)

// IsValid reports whether f is a recognised frame filter.
func (f FrameFilter) IsValid() bool {
	return f == FilterSpeech || f == FilterLeadIn
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Listener  ListenerConfig  `yaml:"listener"`
	Providers ProvidersConfig `yaml:"providers"`
	Actions   ActionsConfig   `yaml:"actions"`
}

// ServerConfig holds the observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects and configures the capture source.
type AudioConfig struct {
	Source AudioSource `yaml:"source"`

	// Path is the file to read for the wav and mp3 sources.
	Path string `yaml:"path"`

	// DeviceIndex picks a microphone; negative selects the system default.
	DeviceIndex int `yaml:"device_index"`

	// SampleRate is the microphone capture rate in Hz. Files use their own.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSize is the number of frames read per label decision.
	ChunkSize int `yaml:"chunk_size"`
}

// ListenerConfig configures utterance segmentation.
type ListenerConfig struct {
	Labeler LabelerKind `yaml:"labeler"`

	// SilenceThresholdRMS is the speech threshold of the silence labeler.
	SilenceThresholdRMS float64 `yaml:"silence_threshold_rms"`

	// TotalDuration is the utterance length of the time labeler.
	TotalDuration time.Duration `yaml:"total_duration"`

	// FluxRatio is the onset/offset ratio of the flux labeler.
	FluxRatio float64 `yaml:"flux_ratio"`

	// VAD configures the session created from providers.vad.
	VAD VADConfig `yaml:"vad"`

	StopFrame      StopFrame   `yaml:"stop_frame"`
	FrameFilter    FrameFilter `yaml:"frame_filter"`
	RemoveDCOffset bool        `yaml:"remove_dc_offset"`
}

// VADConfig mirrors the engine-independent VAD session parameters.
type VADConfig struct {
	SpeechThreshold  float64 `yaml:"speech_threshold"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	OnsetFrames      int     `yaml:"onset_frames"`
	HangoverFrames   int     `yaml:"hangover_frames"`
}

// ProvidersConfig declares which provider implementation backs each
// capability. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	// STT is the primary speech-to-text engine.
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when STT fails.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// WakeSTT is used while the assistant sleeps. Optional; without it the
	// "go to sleep" command is ignored.
	WakeSTT ProviderEntry `yaml:"wake_stt"`

	// VAD is the engine behind the vad labeler.
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. For the whisper
	// provider it is the whisper-server address.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1",
	// "nova-3"), or the model file for whisper-native.
	Model string `yaml:"model"`

	// Language is the recognition language (BCP-47 or ISO 639-1).
	Language string `yaml:"language"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// ActionsConfig enables and configures the built-in actions. They are
// registered in the order control, recorder, mouse.
type ActionsConfig struct {
	Control  ActionToggle   `yaml:"control"`
	Recorder RecorderConfig `yaml:"recorder"`
	Mouse    MouseConfig    `yaml:"mouse"`
	Triggers TriggersConfig `yaml:"triggers"`
}

// ActionToggle is the enabled flag every action carries. Actions are enabled
// unless set to false. Hot-reloadable.
type ActionToggle struct {
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether the action is on.
func (a ActionToggle) IsEnabled() bool { return a.Enabled == nil || *a.Enabled }

// RecorderConfig configures the session recorder.
type RecorderConfig struct {
	ActionToggle `yaml:",inline"`

	// Dir receives one <timestamp>.json file per session.
	Dir string `yaml:"dir"`
}

// MouseConfig configures the pointer action.
type MouseConfig struct {
	ActionToggle `yaml:",inline"`

	// Backend selects the screen automation backend. Only "xdotool" exists.
	Backend string `yaml:"backend"`
}

// TriggersConfig tunes phrase matching of trigger-table actions.
type TriggersConfig struct {
	// FuzzyThreshold enables phonetic fallback matching at this
	// Jaro-Winkler similarity. Zero disables it. Hot-reloadable.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}
