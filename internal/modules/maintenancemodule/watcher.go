package maintenancemodule

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// Watcher observes the asset storage tree for out-of-band changes such
// as files being deleted or dropped in by hand. It only marks the tree
// dirty; the reconciliation happens in the next cleanup run.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	dirty  bool
	events int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewWatcher(root string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{root: root, watcher: fsWatcher}, nil
}

// Start begins watching the root and its existing subdirectories. New
// subdirectories are added to the watch as they appear.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.loop()
	logger.Info("Storage watcher started on %s", w.root)
	return nil
}

// Stop terminates the watch loop.
func (w *Watcher) Stop() error {
	if w.stopCh != nil {
		close(w.stopCh)
		w.wg.Wait()
		w.stopCh = nil
	}
	return w.watcher.Close()
}

// Dirty reports whether changes were observed since the last Reset.
func (w *Watcher) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirty
}

// Reset clears the dirty flag, called after a cleanup pass reconciled
// the tree.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirty = false
}

// EventCount returns the number of filesystem events observed.
func (w *Watcher) EventCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
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
			logger.Warn("Storage watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	w.dirty = true
	w.events++
	w.mu.Unlock()

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				logger.Warn("Failed to watch new directory %s: %v", event.Name, err)
			}
		}
	}
	logger.Debug("Storage change observed: %s %s", event.Op, event.Name)
}
