package corpus

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/dev-sujan/prepdesk/pkg/logging"
)

// Watcher invalidates the library listing when guide files change on disk
// and reports the settled set of changed paths, so edits made outside the
// API (a git pull, a local editor) are picked up without a restart.
type Watcher struct {
	lib      *Library
	watcher  *fsnotify.Watcher
	onChange func(paths []string)
	log      zerolog.Logger

	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	running bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a Watcher over the library's content directory.
// onChange receives corpus-relative paths once events settle; it may be nil.
func NewWatcher(lib *Library, debounce time.Duration, onChange func(paths []string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		lib:      lib,
		watcher:  fsw,
		onChange: onChange,
		log:      logging.WithComponent("watcher"),
		debounce: debounce,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start watches the content tree in a background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.lib.ContentDir()); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.log.Error().Err(err).Msg("closing fsnotify watcher")
	}
}

// addTree registers the directory and all its subdirectories. fsnotify does
// not watch recursively on its own.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watch error")
		case <-ticker.C:
			w.flushSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories must be added to the watch before files appear in
	// them.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", event.Name).Msg("could not watch new directory")
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flushSettled() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}

	relPaths := make([]string, 0, len(settled))
	for _, abs := range settled {
		if rel, err := filepath.Rel(w.lib.ContentDir(), abs); err == nil {
			relPaths = append(relPaths, filepath.ToSlash(rel))
		}
	}

	w.log.Info().Strs("paths", relPaths).Msg("guide files changed on disk")
	w.lib.Invalidate()

	if w.onChange != nil {
		w.onChange(relPaths)
	}
}
