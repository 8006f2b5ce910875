package server

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/bridge/logging"
	"github.com/sirupsen/logrus"
)

// ConfigWatcher watches a directory for bridge.yml changes and invokes
// a reload callback. Rapid successive writes are debounced.
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	mu         sync.Mutex
	lastChange time.Time
	logger     *logrus.Entry
	onReload   func(file string)
}

// NewConfigWatcher watches dir for YAML config changes. The onReload
// callback receives the changed file's base name.
func NewConfigWatcher(dir string, debounce time.Duration, onReload func(string)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &ConfigWatcher{
		watcher:  watcher,
		debounce: debounce,
		logger:   logging.NewLogger("config-watcher"),
		onReload: onReload,
	}, nil
}

// Start begins watching for config changes. It blocks until the
// context is cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isConfigFile(event.Name) {
				continue
			}
			w.handleChange(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Watcher error")
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

func isConfigFile(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}

// handleChange processes a config file change with debouncing.
func (w *ConfigWatcher) handleChange(file string) {
	w.mu.Lock()
	elapsed := time.Since(w.lastChange)
	if elapsed < w.debounce {
		w.mu.Unlock()
		w.logger.WithField("file", filepath.Base(file)).Debug("Debounced config change")
		return
	}
	w.lastChange = time.Now()
	w.mu.Unlock()

	w.logger.WithField("file", filepath.Base(file)).Info("Config changed")
	if w.onReload != nil {
		w.onReload(filepath.Base(file))
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	return w.watcher.Close()
}
