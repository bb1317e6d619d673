//go:build !portaudio

package mic

import (
	"context"

	"github.com/MrWong99/murmur/pkg/audio"
)

// Source is a placeholder used when PortAudio support is not compiled in.
type Source struct{}

// Open always fails with [ErrUnsupported].
func Open(Config) (*Source, error) { return nil, ErrUnsupported }

// Format implements [audio.Source].
func (*Source) Format() audio.Format { return audio.Format{} }

// Read implements [audio.Source].
func (*Source) Read(context.Context, int) (audio.Sample, error) {
	return audio.Sample{}, ErrUnsupported
}

// Close is a no-op.
func (*Source) Close() error { return nil }
