package config_test

import (
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/MrWong99/murmur/internal/config"
)

const minimalProviders = `
providers:
  stt:
    name: whisper
`

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string // substring; empty means valid
	}{
		{
			name: "minimal",
			yaml: minimalProviders,
		},
		{
			name:    "missing stt",
			yaml:    "server:\n  log_level: info\n",
			wantErr: "providers.stt.name",
		},
		{
			name:    "invalid log level",
			yaml:    minimalProviders + "server:\n  log_level: verbose\n",
			wantErr: "log_level",
		},
		{
			name:    "invalid source",
			yaml:    minimalProviders + "audio:\n  source: line-in\n",
			wantErr: "audio.source",
		},
		{
			name:    "wav without path",
			yaml:    minimalProviders + "audio:\n  source: wav\n",
			wantErr: "audio.path",
		},
		{
			name: "mp3 with path",
			yaml: minimalProviders + "audio:\n  source: mp3\n  path: a.mp3\n",
		},
		{
			name:    "negative sample rate",
			yaml:    minimalProviders + "audio:\n  sample_rate: -1\n",
			wantErr: "sample_rate",
		},
		{
			name:    "invalid labeler",
			yaml:    minimalProviders + "listener:\n  labeler: energy\n",
			wantErr: "listener.labeler",
		},
		{
			name:    "vad labeler without engine",
			yaml:    minimalProviders + "listener:\n  labeler: vad\n",
			wantErr: "providers.vad",
		},
		{
			name:    "flux ratio too small",
			yaml:    minimalProviders + "listener:\n  flux_ratio: 0.5\n",
			wantErr: "flux_ratio",
		},
		{
			name:    "invalid stop frame",
			yaml:    minimalProviders + "listener:\n  stop_frame: maybe\n",
			wantErr: "stop_frame",
		},
		{
			name:    "invalid frame filter",
			yaml:    minimalProviders + "listener:\n  frame_filter: all\n",
			wantErr: "frame_filter",
		},
		{
			name:    "vad thresholds inverted",
			yaml:    minimalProviders + "listener:\n  vad:\n    speech_threshold: 100\n    silence_threshold: 200\n",
			wantErr: "silence_threshold",
		},
		{
			name:    "fallback without name",
			yaml:    minimalProviders + "  stt_fallbacks:\n    - model: nova-3\n",
			wantErr: "stt_fallbacks[0]",
		},
		{
			name:    "fuzzy threshold out of range",
			yaml:    minimalProviders + "actions:\n  triggers:\n    fuzzy_threshold: 1.5\n",
			wantErr: "fuzzy_threshold",
		},
		{
			name:    "unknown mouse backend",
			yaml:    minimalProviders + "actions:\n  mouse:\n    backend: robot\n",
			wantErr: "actions.mouse.backend",
		},
		{
			name: "unknown mouse backend while disabled",
			yaml: minimalProviders + "actions:\n  mouse:\n    enabled: false\n    backend: robot\n",
		},
		{
			name: "unknown provider name only warns",
			yaml: "providers:\n  stt:\n    name: my-custom-stt\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
audio:
  source: wav
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "audio.path", "providers.stt.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestLoadFs(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/murmur.yaml", []byte(minimalProviders), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.LoadFs(fs, "/etc/murmur.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("stt name: got %q, want whisper", cfg.Providers.STT.Name)
	}

	if _, err := config.LoadFs(fs, "/etc/missing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
