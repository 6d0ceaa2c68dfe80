package rules

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tbcv/internal/events"
	"tbcv/internal/logging"
)

// Watcher watches the rules directory and triggers a loader reload on
// change, debouncing rapid saves. On reload it publishes a config.changed
// event so dependent caches invalidate.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	loader      *Loader
	bus         *events.Bus
	dir         string
	debounceDur time.Duration
	lastEvent   map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher over the loader's directory.
func NewWatcher(dir string, loader *Loader, bus *events.Bus) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		loader:      loader,
		bus:         bus,
		dir:         dir,
		debounceDur: 500 * time.Millisecond, // debounce rapid editor saves
		lastEvent:   make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.loop()
	logging.Get(logging.CategoryRules).Info("Watching %s for rule changes", w.dir)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	_ = w.watcher.Close()
	<-w.doneCh
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.debounced(ev.Name) {
				continue
			}
			logging.Get(logging.CategoryRules).Info("Rule config changed: %s (%s)", filepath.Base(ev.Name), ev.Op)
			if err := w.loader.Reload(); err != nil {
				logging.Get(logging.CategoryRules).Error("Reload failed: %v", err)
				continue
			}
			w.bus.Publish(events.TopicConfigChanged, map[string]any{
				"file": ev.Name,
				"op":   ev.Op.String(),
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryRules).Error("Watcher error: %v", err)
		}
	}
}

// debounced reports whether this path fired within the debounce window.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.lastEvent[path]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.lastEvent[path] = now
	return false
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
