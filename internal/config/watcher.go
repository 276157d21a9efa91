package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it is edited and reports each new valid
// config that differs from the previous one. Edits that leave the parsed
// config unchanged, such as comments or reordering, are ignored. An invalid
// file is logged and the previous config stays current.
//
// The parent directory is watched so editors that save by rename are seen.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(old, new *Config)
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	current *Config

	quit     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period after the last file event before the file
// is read again. Default 100ms. Non-positive values are ignored.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher loads path, which must be valid, and starts watching it.
// onChange runs on the watcher goroutine and may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		debounce: 100 * time.Millisecond,
		onChange: onChange,
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.current, err = Load(abs); err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}

	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		w.fsw.Close()
		return nil, fmt.Errorf("config: watch %q: %w", filepath.Dir(abs), err)
	}

	go w.loop()
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching and waits for an in-flight reload to finish. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		<-w.finished
		w.fsw.Close()
	})
}

// loop owns the debounce timer. A nil channel blocks, so the reload case is
// disabled until an event arms the timer.
func (w *Watcher) loop() {
	defer close(w.finished)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.quit:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.touches(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher: fsnotify error", "path", w.path, "err", err)
		}
	}
}

// touches reports whether ev may have changed the watched file's content.
func (w *Watcher) touches(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	if Diff(prev, next).Empty() {
		w.mu.Unlock()
		return
	}
	w.current = next
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(prev, next)
	}
}
