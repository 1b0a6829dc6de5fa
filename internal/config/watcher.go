package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/intervox/internal/clock"
)

// DefaultWatchInterval is how often a [Watcher] stats its file.
const DefaultWatchInterval = 5 * time.Second

// ChangeFunc receives every accepted reload.
type ChangeFunc func(old, new *Config, diff ConfigDiff)

// fileState identifies one version of the config file on disk.
type fileState struct {
	mod  time.Time
	size int64
	sum  [sha256.Size]byte
}

func (s fileState) sameStat(info os.FileInfo) bool {
	return s.mod.Equal(info.ModTime()) && s.size == info.Size()
}

// Watcher polls a config file and hot-applies valid edits. A file that fails
// to parse or validate is reported once and ignored until it changes again;
// the last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	clk      clock.Clock

	current atomic.Pointer[Config]

	mu        sync.Mutex
	seen      fileState
	good      [sha256.Size]byte
	listeners []ChangeFunc
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the poll interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithClock sets the clock behind the poll ticker.
func WithClock(c clock.Clock) WatcherOption {
	return func(w *Watcher) { w.clk = c }
}

// NewWatcher loads path, which must exist and be valid.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, clk: clock.Real()}
	for _, o := range opts {
		o(w)
	}
	cfg, st, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current.Store(cfg)
	w.seen, w.good = st, st.sum
	return w, nil
}

// Current returns the last config that loaded cleanly.
func (w *Watcher) Current() *Config { return w.current.Load() }

// OnChange adds fn. Listeners run in the order added, on the goroutine that
// detected the change, and must not call back into the Watcher.
func (w *Watcher) OnChange(fn ChangeFunc) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Run calls [Watcher.Check] every interval until ctx ends, then returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	t := w.clk.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			w.Check()
		}
	}
}

// Check reloads the file if it changed since the last look and reports
// whether a new config was applied.
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen.sameStat(info) {
		return false
	}

	cfg, st, err := readConfigFile(w.path)
	if err != nil {
		if st.sum != w.seen.sum {
			slog.Warn("config: ignoring invalid edit", "path", w.path, "err", err)
		}
		w.seen = st
		return false
	}
	w.seen = st
	if st.sum == w.good {
		return false
	}
	w.good = st.sum

	old := w.current.Swap(cfg)
	d := Diff(old, cfg)
	slog.Info("config: reloaded", "path", w.path, "restart_required", d.RestartRequired)
	for _, fn := range w.listeners {
		fn(old, cfg, d)
	}
	return true
}

// readConfigFile returns the parsed file and its fingerprint. The
// fingerprint is filled in even when parsing fails.
func readConfigFile(path string) (*Config, fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileState{}, err
	}
	st := fileState{mod: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	return cfg, st, err
}
