package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last edit before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a config file after it changes and hands the result to a callback.
type Watcher struct {
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func(Config)
}

// WatcherOption is a functional option applied to a Watcher in Watch.
type WatcherOption func(*Watcher)

// WithDebounce sets how long to wait after the last edit before reloading.
//
// Parameters:
//   - d: the debounce duration
//
// Returns:
//   - WatcherOption: a function that applies the debounce to a watcher
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger reload results are written to.
//
// Parameters:
//   - l: the zap logger
//
// Returns:
//   - WatcherOption: a function that applies the logger to a watcher
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// Watch starts watching the file at path. onChange receives every config that parses and
// validates after an edit; invalid edits are logged and skipped. Watching stops when ctx is done.
//
// Parameters:
//   - ctx: stops the watcher
//   - path: the config file
//   - onChange: called from the watcher goroutine with each reloaded config
//   - options: variadic list of WatcherOption functions
//
// Returns:
//   - *Watcher: the running watcher
//   - error: error if the file's directory cannot be watched
func Watch(ctx context.Context, path string, onChange func(Config), options ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		onChange: onChange,
	}
	for _, opt := range options {
		opt(w)
	}
	w.logger = logger.OrNop(w.logger)

	// editors often replace the file, so watch its directory
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", w.path, err)
	}
	w.logger.Info("watching config", zap.String("path", w.path))

	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.shouldProcessEvent(event) {
				w.logger.Debug("config change detected",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()),
				)
				debounceTimer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))

		case <-debounceTimer.C:
			w.reload()

		case <-ctx.Done():
			debounceTimer.Stop()
			w.watcher.Close()
			return
		}
	}
}

func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("config reloaded", zap.String("path", w.path))
	w.onChange(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
