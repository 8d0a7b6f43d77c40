// Package watch runs a callback when watched files or directories change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/satishbabariya/schema-engine/internal/debug"
)

// DefaultDebounce is the quiet period after the last event before the
// callback runs.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches files and directory trees for changes
type Watcher struct {
	paths    []string
	debounce time.Duration
	callback func(ctx context.Context) error
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher over paths. A file path is watched through its
// directory; a directory is watched with its subdirectories, so new
// migration folders are seen. Missing paths are skipped.
func NewWatcher(paths []string, debounce time.Duration, callback func(ctx context.Context) error) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{debounce: debounce, callback: callback, watcher: watcher}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		info, err := os.Stat(abs)
		if os.IsNotExist(err) {
			debug.Debug("Not watching missing path", "path", abs)
			continue
		}
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
		}
		w.paths = append(w.paths, abs)
		if !info.IsDir() {
			abs = filepath.Dir(abs)
		}
		if err := w.addTree(abs); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

// relevant reports whether an event touches a watched path.
func (w *Watcher) relevant(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	for _, p := range w.paths {
		if abs == p || strings.HasPrefix(abs, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run calls the callback once, then again after every burst of changes,
// until ctx is done. Callback errors are logged and do not stop watching.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.callback(ctx); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()
	var debounceCh <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addTree(event.Name)
				}
			}
			if event.Has(fsnotify.Chmod) || !w.relevant(event.Name) {
				continue
			}
			debounceTimer.Reset(w.debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			if err := w.callback(ctx); err != nil {
				debug.Error("Watch callback failed", "error", err)
				fmt.Fprintf(os.Stderr, "Watch callback error: %v\n", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			debug.Warn("Watch error", "error", err)

		case <-ctx.Done():
			debounceTimer.Stop()
			return nil
		}
	}
}
