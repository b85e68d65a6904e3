// Package watcher triggers rescans when files under the scan roots
// change. Events are debounced so a burst of writes (a download, an
// unzip, a photo import) causes one rescan, not hundreds.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period required before a rescan fires.
const DefaultDebounce = 2 * time.Second

// Watcher owns an fsnotify instance covering every directory under the
// roots and calls back once a change burst settles.
type Watcher struct {
	roots    []string
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   *slog.Logger
}

// New creates a Watcher. onChange runs after each debounced burst; a
// non-positive debounce uses DefaultDebounce.
func New(roots []string, debounce time.Duration, onChange func(ctx context.Context), logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		roots:    roots,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Run watches until the context is cancelled. New directories are
// added to the watch as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	for _, root := range w.roots {
		if err := addRecursive(fsw, root); err != nil {
			w.logger.Warn("failed to watch root", "root", root, "error", err)
		}
	}
	w.logger.Info("watching for changes", "roots", w.roots, "debounce", w.debounce)

	// The timer is parked until the first relevant event.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				// A new directory needs its own watch before files
				// land inside it.
				_ = addRecursive(fsw, event.Name)
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			w.logger.Debug("change burst settled, rescanning")
			w.onChange(ctx)
		}
	}
}

// relevant filters noise: hidden files and chmod-only events never
// warrant a rescan.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	return !strings.HasPrefix(base, ".")
}

// addRecursive watches path and every directory below it. Non-directory
// paths are ignored.
func addRecursive(fsw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(filepath.Base(p), ".") && p != path {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
}
