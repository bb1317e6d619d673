// Package mic captures live audio from a system input device.
//
// Capture uses PortAudio through github.com/gordonklaus/portaudio, which needs
// the PortAudio C library at build time. It is therefore compiled only with
// the "portaudio" build tag; without it [Open] returns [ErrUnsupported].
package mic

import (
	"errors"

	"github.com/MrWong99/murmur/pkg/audio"
)

// ErrUnsupported is returned by [Open] in builds without PortAudio support.
var ErrUnsupported = errors.New("mic: portaudio support not enabled (build with -tags portaudio)")

// Config selects the capture device and format.
type Config struct {
	// DeviceIndex picks an input device from the PortAudio device list.
	// A negative value selects the system default input.
	DeviceIndex int

	// Format is the capture format. SampleWidth must be 2.
	Format audio.Format

	// FramesPerBuffer is the PortAudio buffer size. Defaults to 1024.
	FramesPerBuffer int
}

func (c *Config) applyDefaults() {
	if c.Format == (audio.Format{}) {
		c.Format = audio.DefaultFormat
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = 1024
	}
}
