// Package watcher reports changes to the data files of a repository.
package watcher

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"sl-ot-viewer/internal/company"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceInterval = 500 * time.Millisecond
	// maxWatchDepth covers <repo>/<engagement>/<workstream>.
	maxWatchDepth = 2
)

// excludedDirs are never watched.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
}

// ChangeCallback receives the sorted, de-duplicated paths that changed
// during one debounce window.
type ChangeCallback func(repo string, paths []string)

// Watcher monitors one repository at a time.
type Watcher struct {
	mu       sync.Mutex
	current  *repoWatcher
	callback ChangeCallback
	debounce time.Duration
	logger   *slog.Logger
}

type repoWatcher struct {
	repo      string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
}

// New creates a watcher. A nil logger discards log output.
func New(callback ChangeCallback, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		callback: callback,
		debounce: debounceInterval,
		logger:   logger,
	}
}

// Watch starts watching repo, replacing any repository watched before.
func (w *Watcher) Watch(repo string) error {
	info, err := os.Stat(repo)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", repo)
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := addDirs(fsW, repo, maxWatchDepth); err != nil {
		fsW.Close()
		return err
	}

	rw := &repoWatcher{
		repo:      repo,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
		pending:   make(map[string]bool),
	}

	w.mu.Lock()
	prev := w.current
	w.current = rw
	w.mu.Unlock()

	if prev != nil {
		prev.stop()
	}

	go w.watchLoop(rw)

	w.logger.Info("watching repository", "repo", repo)
	return nil
}

// Watching returns the repository currently watched, if any.
func (w *Watcher) Watching() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return "", false
	}
	return w.current.repo, true
}

// Unwatch stops watching the current repository.
func (w *Watcher) Unwatch() {
	w.mu.Lock()
	rw := w.current
	w.current = nil
	w.mu.Unlock()

	if rw != nil {
		rw.stop()
	}
}

// Shutdown stops all watching.
func (w *Watcher) Shutdown() {
	w.Unwatch()
}

func (rw *repoWatcher) stop() {
	close(rw.cancel)
	rw.fsWatcher.Close()

	rw.mu.Lock()
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.mu.Unlock()
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(rw *repoWatcher) {
	for {
		select {
		case <-rw.cancel:
			return

		case event, ok := <-rw.fsWatcher.Events:
			if !ok {
				return
			}

			// If a new directory is created, watch it too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if depth := dirDepth(rw.repo, event.Name); depth <= maxWatchDepth && !skipDir(event.Name) {
						if err := addDirs(rw.fsWatcher, event.Name, maxWatchDepth-depth); err != nil {
							w.logger.Debug("cannot watch new directory", "dir", event.Name, "error", err)
						}
					}
				}
			}

			if !relevant(event) {
				continue
			}
			w.schedule(rw, event.Name)

		case err, ok := <-rw.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "repo", rw.repo, "error", err)
		}
	}
}

// schedule records path and restarts the debounce timer.
func (w *Watcher) schedule(rw *repoWatcher, path string) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pending[path] = true
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.timer = time.AfterFunc(w.debounce, func() {
		w.flush(rw)
	})
}

func (w *Watcher) flush(rw *repoWatcher) {
	rw.mu.Lock()
	paths := make([]string, 0, len(rw.pending))
	for p := range rw.pending {
		paths = append(paths, p)
	}
	clear(rw.pending)
	rw.mu.Unlock()

	select {
	case <-rw.cancel:
		return
	default:
	}

	if len(paths) == 0 {
		return
	}
	slices.Sort(paths)

	w.logger.Debug("repository changed", "repo", rw.repo, "paths", len(paths))
	if w.callback != nil {
		w.callback(rw.repo, paths)
	}
}

// relevant reports whether event can change the loaded company data.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if base == company.KnowledgeLogName || strings.EqualFold(filepath.Ext(base), ".json") {
		return true
	}
	// A removed or renamed directory may have held knowledge logs.
	return event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// addDirs adds dir and its subdirectories up to depth levels below it.
func addDirs(w *fsnotify.Watcher, dir string, depth int) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		if path != dir {
			if skipDir(path) {
				return filepath.SkipDir
			}
			if dirDepth(dir, path) > depth {
				return filepath.SkipDir
			}
		}

		return w.Add(path)
	})
}

func skipDir(path string) bool {
	name := filepath.Base(path)
	return excludedDirs[name] || isHidden(name)
}

// dirDepth is the number of path elements of path below root.
func dirDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
