package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of filesystem events editors emit on
// save into one reload.
const reloadDebounce = 300 * time.Millisecond

// ChangeHandler receives the freshly loaded config after the file changed.
type ChangeHandler func(cfg *Config)

// Watcher reloads the config file when it changes on disk, so editing the
// connector catalog takes effect without a restart. A reload that fails to
// parse keeps the previous config in effect.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher
	done chan struct{}

	mu       sync.Mutex
	handlers []ChangeHandler
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, fsw: fsw}, nil
}

// OnChange registers a handler invoked after each successful reload.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching. Fails when the file does not exist yet.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.path); err != nil {
		return err
	}
	w.done = make(chan struct{})
	go w.loop()
	slog.Info("config watcher started", "path", w.path)
	return nil
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	if w.done != nil {
		close(w.done)
	}
	w.fsw.Close()
	slog.Info("config watcher stopped")
}

func (w *Watcher) loop() {
	var pending *time.Timer

	for {
		select {
		case <-w.done:
			if pending != nil {
				pending.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous config", "error", err)
		return
	}

	w.mu.Lock()
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}
	slog.Info("config reloaded", "path", w.path, "connectors", len(cfg.Connectors))
}
