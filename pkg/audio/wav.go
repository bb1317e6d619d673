package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// wavFormatPCM is the RIFF audio format tag for uncompressed PCM.
const wavFormatPCM = 1

// IntBuffer returns the sample as a go-audio integer buffer. 8-bit audio is
// widened to 16 bits because WAV stores it unsigned.
func (s Sample) IntBuffer() *goaudio.IntBuffer {
	smp := s
	if smp.format.SampleWidth == 1 {
		f := smp.format
		f.SampleWidth = 2
		if conv, err := smp.Convert(f); err == nil {
			smp = conv
		}
	}
	return &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: smp.format.Channels,
			SampleRate:  smp.format.SampleRate,
		},
		Data:           smp.Ints(),
		SourceBitDepth: smp.format.SampleWidth * 8,
	}
}

// WriteWAV encodes the sample as a RIFF/WAVE file into w.
func (s Sample) WriteWAV(w io.WriteSeeker) error {
	buf := s.IntBuffer()
	enc := wav.NewEncoder(w, buf.Format.SampleRate, buf.SourceBitDepth, buf.Format.NumChannels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav: %w", err)
	}
	return nil
}

// EncodeWAV returns the sample as the bytes of a RIFF/WAVE file. Encoding
// happens on an in-memory file system since the WAV encoder needs to seek
// back and patch the header sizes.
func (s Sample) EncodeWAV() ([]byte, error) {
	fs := afero.NewMemMapFs()
	const name = "sample.wav"
	f, err := fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("audio: create wav buffer: %w", err)
	}
	if err := s.WriteWAV(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("audio: close wav buffer: %w", err)
	}
	return afero.ReadFile(fs, name)
}
