package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadFunc receives the configuration re-read after the .env file changed.
type ReloadFunc func(*Config)

// Watcher monitors the data directory .env file and reloads the
// configuration when it changes.
type Watcher struct {
	dataDir     string
	envPath     string
	onReload    ReloadFunc
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	debounce    time.Duration
	pollEvery   time.Duration
	mu          sync.Mutex
	lastModTime time.Time
}

// NewWatcher creates a watcher for cfg.EnvFile. onReload runs on the watcher goroutine.
func NewWatcher(cfg *Config, onReload ReloadFunc) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		dataDir:   cfg.DataDir,
		envPath:   cfg.EnvFile,
		onReload:  onReload,
		watcher:   watcher,
		stopChan:  make(chan struct{}),
		debounce:  100 * time.Millisecond,
		pollEvery: 5 * time.Second,
	}
	if stat, err := os.Stat(w.envPath); err == nil {
		w.lastModTime = stat.ModTime()
	}
	return w, nil
}

// Start begins watching. When the directory cannot be watched it falls back to polling.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.envPath)
	if err := w.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory, falling back to polling")
		go w.pollForChanges()
		return nil
	}

	go w.handleEvents(w.watcher.Events, w.watcher.Errors)
	log.Info().Str("env_path", w.envPath).Msg("Started watching config file for changes")
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

func (w *Watcher) handleEvents(events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Name != w.envPath && filepath.Base(event.Name) != filepath.Base(w.envPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Debounce - wait a bit for write to complete
			time.Sleep(w.debounce)
			log.Info().Str("event", event.Op.String()).Msg("Detected .env file change")
			w.reload()

		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(w.envPath)
			if err != nil {
				continue
			}
			w.mu.Lock()
			changed := stat.ModTime().After(w.lastModTime)
			if changed {
				w.lastModTime = stat.ModTime()
			}
			w.mu.Unlock()
			if changed {
				log.Info().Msg("Detected .env file change via polling")
				w.reload()
			}

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.dataDir)
	if err != nil {
		log.Error().Err(err).Str("path", w.envPath).Msg("Failed to reload configuration, keeping previous settings")
		return
	}
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
