package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// DefaultWatchInterval is how often a [Watcher] polls the config file.
const DefaultWatchInterval = 5 * time.Second

// Reload is handed to the [Watcher] callback after an edit that changes the
// effective configuration.
type Reload struct {
	Old, New *Config

	// Diff is Diff(Old, New). It is never empty.
	Diff ConfigDiff
}

// Watcher keeps murmur's configuration in sync with its file. It polls the
// file's modification time; when that moves, the file is re-read and
// compared by content hash and then by [Diff]. Only edits that change the
// effective configuration reach the callback. An edit that fails to parse or
// validate is logged and the previous configuration stays current.
type Watcher struct {
	fs       afero.Fs
	path     string
	interval time.Duration
	onReload func(Reload)

	// checkMu serialises Check so reloads reach the callback in order.
	checkMu sync.Mutex
	mtime   time.Time
	hash    [sha256.Size]byte

	mu      sync.Mutex
	current *Config

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Zero disables polling; changes are
// then only picked up through [Watcher.Check].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.interval = d
		}
	}
}

// WithFs makes the watcher read the config from fs instead of the OS file
// system.
func WithFs(fs afero.Fs) WatcherOption {
	return func(w *Watcher) {
		if fs != nil {
			w.fs = fs
		}
	}
}

// NewWatcher loads the config at path and starts watching it. onReload may be
// nil.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		fs:       afero.NewOsFs(),
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.hash, w.mtime = cfg, hash, mtime

	if w.interval > 0 {
		go w.poll()
	}
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check re-reads the file if its modification time moved and runs the
// callback when the effective configuration changed. It reports whether the
// callback ran. main calls it on SIGHUP; the poll loop calls it on every tick.
func (w *Watcher) Check() bool {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	info, err := w.fs.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return false
	}
	if info.ModTime().Equal(w.mtime) {
		return false
	}
	// Recorded before parsing so a broken edit is reported once.
	w.mtime = info.ModTime()

	cfg, hash, _, err := w.read()
	if err != nil {
		slog.Warn("config: edit rejected, keeping previous configuration", "path", w.path, "err", err)
		return false
	}
	if hash == w.hash {
		return false
	}
	w.hash = hash

	w.mu.Lock()
	r := Reload{Old: w.current, New: cfg, Diff: Diff(w.current, cfg)}
	w.current = cfg
	w.mu.Unlock()

	if !r.Diff.Changed() {
		slog.Debug("config: edit has no effect", "path", w.path)
		return false
	}
	slog.Info("config: reloaded",
		"path", w.path,
		"log_level_changed", r.Diff.LogLevelChanged,
		"toggles", len(r.Diff.Toggles),
		"fuzzy_threshold_changed", r.Diff.FuzzyThresholdChanged,
		"restart_required", r.Diff.RestartRequired,
	)
	if w.onReload != nil {
		w.onReload(r)
	}
	return true
}

func (w *Watcher) read() (*Config, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	data, err := afero.ReadFile(w.fs, w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
