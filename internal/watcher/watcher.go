// Package watcher reloads the configuration file on change, debounced,
// so portal locator drift can be fixed on a live service without a
// restart.
package watcher

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned when operations are called on a closed Watcher.
var ErrClosed = errors.New("watcher: watcher is closed")

// DefaultDebounce coalesces editor write bursts into one reload.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc is invoked with the changed file's path after debouncing.
type ReloadFunc func(path string)

// Watcher watches a single configuration file.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	reload    ReloadFunc
	debounce  time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	done   chan struct{}
}

// New starts watching path. Editors replace files on save, so the
// parent directory is watched and events filtered by name.
func New(path string, reload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsw,
		path:      abs,
		reload:    reload,
		debounce:  DefaultDebounce,
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		slog.Info("config file changed, reloading", "path", w.path)
		w.reload(w.path)
	})
}

// Close stops watching. Pending debounced reloads are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.fsWatcher.Close()
}
