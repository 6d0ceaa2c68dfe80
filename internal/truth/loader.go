package truth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"tbcv/internal/events"
	"tbcv/internal/logging"
	"tbcv/internal/types"
)

// truthFile is the YAML shape of one family file under the truth directory.
// The file name (minus extension) is the family when the records omit one.
type truthFile struct {
	Family  string               `yaml:"family"`
	Records []*types.TruthRecord `yaml:"records"`
}

// Loader reads truth YAML files and feeds the index. Reload builds the full
// record set and swaps it in atomically via Index.Replace.
type Loader struct {
	dir   string
	index *Index

	mu     sync.Mutex
	loaded map[string]int // file -> record count, for stats/logging
}

// NewLoader creates a loader over dir feeding index.
func NewLoader(dir string, index *Index) *Loader {
	return &Loader{dir: dir, index: index, loaded: make(map[string]int)}
}

// Reload re-reads every YAML file in the directory and replaces the index
// contents. A missing directory yields an empty index, not an error.
func (l *Loader) Reload() error {
	timer := logging.StartTimer(logging.CategoryTruth, "Reload")
	defer timer.Stop()

	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		l.index.Replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading truth dir %s: %w", l.dir, err)
	}

	var records []*types.TruthRecord
	counts := make(map[string]int)
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		fileRecords, err := l.loadFile(path)
		if err != nil {
			// One bad file must not take down the whole index.
			logging.Get(logging.CategoryTruth).Error("Skipping %s: %v", entry.Name(), err)
			continue
		}
		records = append(records, fileRecords...)
		counts[entry.Name()] = len(fileRecords)
	}

	l.index.Replace(records)
	l.mu.Lock()
	l.loaded = counts
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadFile(path string) ([]*types.TruthRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf truthFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	family := tf.Family
	if family == "" {
		family = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	for _, r := range tf.Records {
		if r.CanonicalName == "" {
			return nil, fmt.Errorf("record without canonical_name in %s", filepath.Base(path))
		}
		if r.Family == "" {
			r.Family = types.Family(family)
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
	}
	return tf.Records, nil
}

// Files returns per-file record counts from the last reload.
func (l *Loader) Files() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.loaded))
	for k, v := range l.loaded {
		out[k] = v
	}
	return out
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// cacheInvalidator is the slice of the cache layer the watcher needs.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, tags []string) int
}

// Watcher reloads truth files on change. On reload it publishes a
// truth.reloaded event and invalidates cached truth lookups.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	loader      *Loader
	bus         *events.Bus
	cache       cacheInvalidator // may be nil
	debounceDur time.Duration
	lastEvent   map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher over the loader's directory. cache may be nil.
func NewWatcher(loader *Loader, bus *events.Bus, cache cacheInvalidator) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		loader:      loader,
		bus:         bus,
		cache:       cache,
		debounceDur: 500 * time.Millisecond,
		lastEvent:   make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.loader.dir); err != nil {
		return err
	}
	go w.loop()
	logging.Truth("Watching %s for truth changes", w.loader.dir)
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
			if !isYAMLFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.debounced(ev.Name) {
				continue
			}
			logging.Truth("Truth file changed: %s (%s)", filepath.Base(ev.Name), ev.Op)
			if err := w.loader.Reload(); err != nil {
				logging.Get(logging.CategoryTruth).Error("Truth reload failed: %v", err)
				continue
			}
			family := strings.TrimSuffix(filepath.Base(ev.Name), filepath.Ext(ev.Name))
			if w.cache != nil {
				w.cache.Invalidate(context.Background(), []string{"truth:" + family})
			}
			w.bus.Publish(events.TopicTruthReloaded, map[string]any{
				"file":   ev.Name,
				"family": family,
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryTruth).Error("Truth watcher error: %v", err)
		}
	}
}

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
