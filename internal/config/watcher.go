package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the endpoint inventory file and reloads the
// provider when it changes, then notifies the registered callback so
// running schedulers can apply threshold and enabled-flag edits.
type Watcher struct {
	provider    *FileProvider
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time

	mu       sync.RWMutex
	onReload func()
}

// NewWatcher creates a watcher for the provider's file.
func NewWatcher(provider *FileProvider) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		provider: provider,
		watcher:  fsw,
		stopChan: make(chan struct{}),
	}
	if stat, err := os.Stat(provider.Path()); err == nil {
		w.lastModTime = stat.ModTime()
	}
	return w, nil
}

// SetReloadCallback registers the function invoked after a successful
// reload.
func (w *Watcher) SetReloadCallback(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = callback
}

// Start begins watching. Editors replace files rather than writing in
// place, so the parent directory is watched. If the directory cannot
// be watched the watcher falls back to polling.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.provider.Path())
	if err := w.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch inventory directory, falling back to polling")
		go w.pollForChanges()
		return nil
	}

	go w.watchForChanges()
	log.Info().Str("file", w.provider.Path()).Msg("Watching endpoint inventory for changes")
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

func (w *Watcher) watchForChanges() {
	target := filepath.Base(w.provider.Path())
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce: wait for the write to complete.
			time.Sleep(100 * time.Millisecond)
			log.Info().Str("event", event.Op.String()).Msg("Detected endpoint inventory change")
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Inventory watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(w.provider.Path())
			if err != nil {
				continue
			}
			if stat.ModTime().After(w.lastModTime) {
				w.lastModTime = stat.ModTime()
				log.Info().Msg("Detected endpoint inventory change via polling")
				w.reload()
			}

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	if err := w.provider.Reload(); err != nil {
		log.Error().Err(err).Msg("Inventory reload failed, keeping previous configuration")
		return
	}

	w.mu.RLock()
	callback := w.onReload
	w.mu.RUnlock()
	if callback != nil {
		callback()
	}
}
