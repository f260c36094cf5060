package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 500 * time.Millisecond

// Watcher reloads the configuration when the YAML file changes and hands
// the new value to registered callbacks. Invalid files are logged and
// ignored; the previous configuration stays active.
type Watcher struct {
	path   string
	load   func() (Config, error)
	logger *zap.Logger

	mu        sync.RWMutex
	current   Config
	callbacks []func(Config)
}

// NewWatcher creates a watcher for path starting from initial.
func NewWatcher(path string, initial Config, logger *zap.Logger) *Watcher {
	return &Watcher{path: path, load: Load, current: initial, logger: logger}
}

// OnChange registers a callback invoked with every accepted change.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Current returns the active configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches until ctx is done. The directory is watched rather than the
// file so that editors replacing the file by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Info("Configuration hot reloading enabled", zap.String("file", w.path))

	target := filepath.Clean(w.path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-ctx.Done():
			w.logger.Info("Stopping configuration watcher")
			return nil
		}
	}
}

func (w *Watcher) reload() {
	next, err := w.load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload", zap.Error(err))
		return
	}

	w.mu.Lock()
	if reflect.DeepEqual(w.current, next) {
		w.mu.Unlock()
		w.logger.Debug("Configuration unchanged after reload")
		return
	}
	old := w.current
	w.current = next
	callbacks := append([]func(Config){}, w.callbacks...)
	w.mu.Unlock()

	if old.Logging.Level != next.Logging.Level {
		w.logger.Info("Log level changed",
			zap.String("from", old.Logging.Level),
			zap.String("to", next.Logging.Level),
		)
	}
	for _, cb := range callbacks {
		cb(next)
	}
	w.logger.Info("Configuration reloaded", zap.Int("callbacks_notified", len(callbacks)))
}
