// Package watch reports changes below a set of directories, batching bursts
// of filesystem events into a single callback.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/pagegrid/internal/ctxlog"
)

// DefaultDebounce is how long the tree must be quiet before a batch fires.
const DefaultDebounce = 300 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Ignore lists directories whose events are dropped, typically the
	// build output.
	Ignore []string
}

// Watcher watches directory trees and single files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	ignore   []string

	mu      sync.Mutex
	pending map[string]struct{}
	last    time.Time
}

// New creates a watcher for the given paths. Directories are watched
// recursively, including directories created later.
func New(ctx context.Context, paths []string, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		debounce: opts.Debounce,
		pending:  make(map[string]struct{}),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	for _, dir := range opts.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}

	for _, p := range paths {
		if err := w.add(ctx, p); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// add watches path, walking it when it is a directory.
func (w *Watcher) add(ctx context.Context, path string) error {
	logger := ctxlog.FromContext(ctx)
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.watcher.Add(abs)
	}
	return filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}
		logger.Debug("Watching directory.", "dir", p)
		return w.watcher.Add(p)
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, dir := range w.ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run delivers batches of changed paths to onChange until ctx is done. It
// closes the watcher before returning.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, paths []string)) error {
	logger := ctxlog.FromContext(ctx)
	defer w.watcher.Close()

	tick := w.debounce / 3
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Watcher stopped.")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			logger.Warn("Watcher error.", "error", err)

		case <-ticker.C:
			if paths := w.flush(time.Now()); len(paths) > 0 {
				logger.Info("Change detected.", "paths", len(paths))
				onChange(ctx, paths)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if w.ignored(event.Name) || event.Op == fsnotify.Chmod {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.add(ctx, event.Name); err != nil {
				ctxlog.FromContext(ctx).Warn("Could not watch new directory.", "dir", event.Name, "error", err)
			}
		}
	}
	ctxlog.FromContext(ctx).Debug("File event.", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	w.last = time.Now()
	w.mu.Unlock()
}

// flush returns the pending paths once no event arrived for the debounce
// duration.
func (w *Watcher) flush(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 || now.Sub(w.last) < w.debounce {
		return nil
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.pending = make(map[string]struct{})
	return paths
}
