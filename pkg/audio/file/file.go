// Package file provides [audio.Source] implementations backed by audio files.
//
// WAV files are decoded with github.com/go-audio/wav and MP3 files with
// github.com/hajimehoshi/go-mp3. Both stream from disk; nothing is loaded up
// front. Use [Open] to pick a decoder from the file extension.
package file

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/MrWong99/murmur/pkg/audio"
)

// Source is an [audio.Source] that owns an open file.
type Source interface {
	audio.Source
	io.Closer
}

// Open opens path on fs and returns a streaming source for it. The decoder
// is chosen by extension (".wav" or ".mp3").
func Open(fs afero.Fs, path string) (Source, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file: open %q: %w", path, err)
	}

	var src Source
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		src, err = NewWAV(f)
	case ".mp3":
		src, err = NewMP3(f)
	default:
		err = fmt.Errorf("unsupported extension %q", ext)
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("file: %q: %w", path, err)
	}
	return src, nil
}
