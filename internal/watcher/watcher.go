// Package watcher keeps a store in sync with a values file on disk.
//
// The watcher observes the file's directory rather than the file itself so
// that editors which save by writing a temporary file and renaming it over
// the original are picked up. Bursts of events are coalesced by a debounce
// delay before the file is reloaded.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/dshills/kvobserve/internal/config"
)

// DefaultDebounce is the delay applied when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// ErrAlreadyRunning is returned by Run when the watcher is already running.
var ErrAlreadyRunning = errors.New("watcher already running")

// Target receives the reloaded values. *store.Store satisfies it.
type Target interface {
	Replace(next map[string]string) int
}

// Loader reads the values file.
type Loader func(path string) (map[string]string, error)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the delay between the last file event and the reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithLoader replaces config.LoadValues.
func WithLoader(fn Loader) Option {
	return func(w *Watcher) {
		if fn != nil {
			w.load = fn
		}
	}
}

// Stats contains watcher statistics.
type Stats struct {
	Reloads   int64
	Failures  int64
	LastError error
}

// Watcher reloads a values file into a Target whenever it changes.
type Watcher struct {
	path   string
	target Target
	delay  time.Duration
	load   Loader
	logger zerolog.Logger

	running atomic.Bool

	reloads  atomic.Int64
	failures atomic.Int64

	mu      sync.Mutex
	lastErr error
}

// New creates a watcher for path. The file itself may not exist yet but its
// directory must.
func New(path string, target Target, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(filepath.Dir(abs)); err != nil {
		return nil, fmt.Errorf("values directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("values directory %s is not a directory", filepath.Dir(abs))
	}

	w := &Watcher{
		path:   abs,
		target: target,
		delay:  DefaultDebounce,
		load:   config.LoadValues,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Reload reads the file and applies it to the target, returning the number
// of keys that changed. On failure the target is left untouched.
func (w *Watcher) Reload() (int, error) {
	values, err := w.load(w.path)
	if err != nil {
		w.failures.Add(1)
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
		return 0, err
	}
	n := w.target.Replace(values)
	w.reloads.Add(1)
	return n, nil
}

// Run watches the file until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info().Str("path", w.path).Dur("debounce", w.delay).Msg("watching values file")

	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug().Str("path", ev.Name).Stringer("op", ev.Op).Msg("values file event")
			timer.Reset(w.delay)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.failures.Add(1)
			w.mu.Lock()
			w.lastErr = err
			w.mu.Unlock()
			w.logger.Warn().Err(err).Msg("fsnotify error")

		case <-timer.C:
			n, err := w.Reload()
			if err != nil {
				w.logger.Warn().Err(err).Str("path", w.path).Msg("reload failed, keeping current values")
				continue
			}
			w.logger.Info().Int("changed", n).Str("path", w.path).Msg("values reloaded")
		}
	}
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		Reloads:   w.reloads.Load(),
		Failures:  w.failures.Load(),
		LastError: w.lastErr,
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Rename)
}
