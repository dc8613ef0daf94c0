package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"xagent/internal/logging"
)

// Watcher reloads the config file when it changes on disk and fans the new
// snapshot out to subscribers. Delivery is at-least-once: editors that write
// via rename can produce several events per save, and each successful reload
// notifies every subscriber.
type Watcher struct {
	path string

	mu      sync.RWMutex
	current *Config
	subs    []func(*Config)

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher loads the config at path and begins watching its directory.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	// Watch the directory, not the file: saves that replace the file would
	// otherwise drop the watch.
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:    path,
		current: cfg,
		fw:      fw,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the latest loaded snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a callback invoked with each new snapshot. The callback
// also fires once immediately with the current snapshot.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	cur := w.current
	w.mu.Unlock()
	fn(cur)
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) loop() {
	log := logging.Get(logging.CategoryBoot)

	// Debounce: editors emit bursts of events per save.
	var pending <-chan time.Time
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warnw("config watch error", "error", err)
		case <-pending:
			pending = nil
			cfg, err := Load(w.path)
			if err != nil {
				log.Warnw("config reload failed", "path", w.path, "error", err)
				continue
			}
			w.mu.Lock()
			w.current = cfg
			subs := append([]func(*Config){}, w.subs...)
			w.mu.Unlock()
			log.Infow("config reloaded", "path", w.path)
			for _, fn := range subs {
				fn(cfg)
			}
		}
	}
}
