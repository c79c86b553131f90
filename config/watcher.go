package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads RunConfig from disk whenever its file changes, pushing
// the new value on Changes. Only one watch may be active per Watcher.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu         sync.Mutex
	isWatching bool

	changes chan RunConfig
	errs    chan error
}

// NewWatcher builds a Watcher for path. The file need not exist yet;
// fsnotify watches its containing directory so a later create is caught.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	return &Watcher{
		path:    path,
		watcher: w,
		changes: make(chan RunConfig, 4),
		errs:    make(chan error, 4),
	}, nil
}

// Changes returns the channel of successfully reloaded configs.
func (w *Watcher) Changes() <-chan RunConfig { return w.changes }

// Errors returns the channel of reload/parse failures encountered while
// watching; a malformed write never panics the watch loop.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Start begins watching the config file's directory. Safe to call once;
// a second call is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		return nil
	}
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("config: watch dir %s: %w", dir, err)
	}
	w.isWatching = true
	w.mu.Unlock()

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer close(w.changes)
	defer close(w.errs)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.errs <- err
				continue
			}
			w.changes <- cfg
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.errs <- err
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
