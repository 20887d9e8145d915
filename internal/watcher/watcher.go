// Package watcher turns filesystem change notifications into
// debounced reindex requests.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codeask/internal/index"
	"codeask/internal/logging"
)

// DefaultDebounce is the quiet period before a burst of file events
// triggers one reindex request.
const DefaultDebounce = 2 * time.Second

// ChangeHandler is called once per debounced burst of relevant
// changes.
type ChangeHandler func(paths []string)

// Watcher watches the repo tree and coalesces change events.
type Watcher struct {
	repoRoot string
	config   *index.Config
	logger   *logging.Logger
	handler  ChangeHandler

	fsw       *fsnotify.Watcher
	debouncer *Debouncer

	mu      sync.Mutex
	pending map[string]bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher over the repo tree. debounce <= 0 selects
// DefaultDebounce.
func New(repoRoot string, config *index.Config, debounce time.Duration, logger *logging.Logger, handler ChangeHandler) (*Watcher, error) {
	if config == nil {
		config = index.DefaultConfig()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	return &Watcher{
		repoRoot:  repoRoot,
		config:    config,
		logger:    logger,
		handler:   handler,
		fsw:       fsw,
		debouncer: NewDebouncer(debounce),
		pending:   make(map[string]bool),
		done:      make(chan struct{}),
	}, nil
}

// Start registers every non-excluded directory and begins the event
// loop. fsnotify does not watch recursively, so directories are added
// one by one; new directories are picked up from create events.
func (w *Watcher) Start() error {
	if err := w.addDirs(w.repoRoot); err != nil {
		w.fsw.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("File watcher started", map[string]interface{}{
		"root": w.repoRoot,
	})
	return nil
}

// Stop shuts the watcher down, discarding any pending burst.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
	w.debouncer.Cancel()
	w.wg.Wait()
	w.logger.Info("File watcher stopped", nil)
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.repoRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && w.excludedDir(rel, entry.Name()) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("Failed to watch directory", map[string]interface{}{
				"path":  path,
				"error": addErr.Error(),
			})
		}
		return nil
	})
}

func (w *Watcher) excludedDir(rel, base string) bool {
	for _, pattern := range w.config.Excludes {
		p := filepath.ToSlash(pattern)
		if base == p || rel == p {
			return true
		}
	}
	return false
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.repoRoot, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// New directories need their own watch registration.
	if ev.Op.Has(fsnotify.Create) {
		if fi, statErr := os.Stat(ev.Name); statErr == nil && fi.IsDir() {
			if !w.excludedDir(rel, fi.Name()) {
				_ = w.addDirs(ev.Name)
			}
			return
		}
	}

	if !w.config.Matches(rel) {
		return
	}

	w.mu.Lock()
	w.pending[rel] = true
	w.mu.Unlock()

	w.debouncer.Trigger(w.flush)
}

// flush hands the accumulated burst to the handler.
func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	w.logger.Debug("File changes detected", map[string]interface{}{
		"count": len(paths),
	})
	if w.handler != nil {
		w.handler(paths)
	}
}
