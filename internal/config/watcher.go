package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher could not be created.
var ErrWatcherFailed = errors.New("settings watcher failed")

// Watcher keeps an up-to-date settings snapshot by reloading the settings
// file whenever it changes on disk.
//
// The parent directory is watched rather than the file itself so that
// editors and apps that replace the file atomically are still observed.
// A reload that fails validation keeps the previous snapshot.
type Watcher struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)

	stopOnce sync.Once
	stop     chan struct{}
}

// NewWatcher loads the settings file once and prepares a watcher for it.
// Call Start to begin watching.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := LoadWithFile(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		logger:  logger,
		watcher: fw,
		stop:    make(chan struct{}),
	}
	w.current.Store(cfg)
	return w, nil
}

// Current returns the latest valid settings snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// OnChange registers fn to be called with every successfully reloaded snapshot.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start begins watching in a background goroutine. Call Stop to clean up.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching settings directory: %w", err)
	}
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("settings watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadWithFile(w.path)
	if err != nil {
		w.logger.Warn("settings reload failed, keeping previous settings",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}
	w.current.Store(cfg)
	w.logger.Info("settings reloaded",
		zap.String("path", w.path),
		zap.String("embedding_model", cfg.Embeddings.Model))

	w.mu.Lock()
	listeners := append([]func(*Config){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}
