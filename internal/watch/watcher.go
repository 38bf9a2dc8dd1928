package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 500 * time.Millisecond

// DefaultPatterns select the files a rebuild depends on.
func DefaultPatterns() []string {
	return []string{"**/*.csv", "**/*.yaml", "**/*.yml"}
}

var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"site":         true,
}

// Watcher triggers a callback after a burst of changes under root settles.
type Watcher struct {
	root     string
	patterns []string
	debounce time.Duration
	logger   *zap.Logger
	fsw      *fsnotify.Watcher

	closeOnce sync.Once
}

// New watches root recursively. Watches are registered before New returns,
// so changes made afterwards are never missed.
func New(root string, patterns []string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		patterns: patterns,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.fsw.Close() })
	return err
}

// Run blocks until ctx is done. onChange errors are logged and watching
// continues; the next change retries.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	defer w.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := make(map[string]bool)

	w.logger.Info("watching for changes",
		zap.String("root", w.root),
		zap.Duration("debounce", w.debounce),
		zap.Strings("patterns", w.patterns))

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				pending[event.Name] = true
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)

			w.logger.Info("change detected, rebuilding", zap.Strings("files", changed))
			if err := onChange(ctx); err != nil {
				w.logger.Error("rebuild failed", zap.Error(err))
			}
		}
	}
}

// handle reports whether event should schedule a rebuild. New directories
// are watched as they appear.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !excludedDirs[filepath.Base(event.Name)] {
				if err := w.addRecursive(event.Name); err != nil {
					w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
				}
			}
			return false
		}
	}
	if event.Op == fsnotify.Chmod {
		return false
	}
	return w.relevant(event.Name)
}

// relevant matches path, relative to root, against the patterns. Matching
// ignores case so exports from Windows hosts are picked up.
func (w *Watcher) relevant(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if excludedDirs[part] {
			return false
		}
	}
	lower := strings.ToLower(rel)
	for _, p := range w.patterns {
		if ok, _ := doublestar.Match(strings.ToLower(p), lower); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && excludedDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		w.logger.Debug("watching directory", zap.String("path", path))
		return nil
	})
}
