package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Watcher reloads a Classifier's rules whenever its manifest file changes.
// A manifest that fails to parse is logged and the previous rules stay active.
type Watcher struct {
	path       string
	classifier *Classifier
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	reloaded   func(rules []Rule, err error)

	stopOnce sync.Once
	done     chan struct{}
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(rules []Rule, err error)) WatcherOption {
	return func(w *Watcher) { w.reloaded = fn }
}

// NewWatcher creates a watcher for the manifest at path.
func NewWatcher(path string, c *Classifier, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rule manifest path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		path:       absPath,
		classifier: c,
		watcher:    fw,
		debounce:   defaultReloadDebounce,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the manifest's directory; editors often replace files by rename,
// which a watch on the file itself would miss.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch rule manifest directory %s: %w", dir, err)
	}

	slog.Info("[Classifier] Watching rule manifest", "path", w.path)
	go w.loop(ctx)
	return nil
}

// Stop ends the watch. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if err := w.watcher.Close(); err != nil {
			slog.Error("[Classifier] Error closing file watcher", "error", err)
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	name := filepath.Base(w.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				if event.Op&fsnotify.Remove != 0 {
					slog.Warn("[Classifier] Rule manifest removed, keeping active rules", "path", event.Name)
				}
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("[Classifier] Rule manifest watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	rules, err := LoadManifestFile(w.path)
	if err != nil {
		slog.Error("[Classifier] Failed to reload rule manifest, keeping active rules",
			"path", w.path,
			"error", err)
	} else {
		w.classifier.Replace(rules)
		slog.Info("[Classifier] Rule manifest reloaded", "path", w.path, "rules", len(rules))
	}
	if w.reloaded != nil {
		w.reloaded(rules, err)
	}
}
