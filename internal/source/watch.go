package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "confprog/internal/log"
)

// Watcher reloads a catalog whose source is a local file when that file changes.
type Watcher struct {
	catalog  *Catalog
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher watches the directory holding the catalog's source file, so
// editors that replace the file by rename are still seen.
func NewWatcher(c *Catalog) (*Watcher, error) {
	if IsRemote(c.Source()) {
		return nil, fmt.Errorf("cannot watch remote source")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(c.Source())
	if err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{
		catalog:  c,
		path:     abs,
		watcher:  w,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)
	appLog.Info("watching program file", "path", w.path)
	return nil
}

// Stop ends watching and waits for the loops to exit.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending = true
				w.mu.Unlock()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			appLog.Error("program watcher error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			fire := w.pending
			w.pending = false
			w.mu.Unlock()
			if !fire {
				continue
			}
			appLog.Debug("program file changed; reloading", "path", w.path)
			if err := w.catalog.Reload(ctx); err != nil {
				appLog.Error("program reload after change failed", err, "path", w.path)
			}
		}
	}
}
