package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// debounceWrite is overridable in tests to avoid waiting out real timers.
var debounceWrite = 300 * time.Millisecond

// Watcher reloads Config from the .env file on disk whenever it
// changes, the same debounced fsnotify loop the teacher uses for its
// own auth/env file. Settings stored in system_settings (sqlite) are
// reloaded separately by whatever holds the *store.SettingsRepo; this
// watcher only covers the process-environment overlay.
type Watcher struct {
	cfg     *Config
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching cfg.DataDir for .env changes and applies
// them to cfg in place, guarded by Mu.
func NewWatcher(cfg *Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(cfg.DataDir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{cfg: cfg, watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	envPath := filepath.Join(w.cfg.DataDir, ".env")
	var pending *time.Timer

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != envPath || (ev.Op&(fsnotify.Write|fsnotify.Create) == 0) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceWrite, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("config: watcher error")
		}
	}
}

// reload re-applies the .env file with Overload before calling Load:
// Load never replaces a variable that is already set, and the earlier
// Load put the file's entries into the process environment. After a
// reload, a variable set both in the environment and in .env takes the
// file's value.
func (w *Watcher) reload() {
	envPath := filepath.Join(w.cfg.DataDir, ".env")
	if err := godotenv.Overload(envPath); err != nil {
		log.Warn().Err(err).Str("path", envPath).Msg("config: failed to re-read .env file")
	}
	fresh, err := Load()
	if err != nil {
		log.Error().Err(err).Msg("config: reload failed, keeping previous configuration")
		return
	}

	Mu.Lock()
	defer Mu.Unlock()
	*w.cfg = *fresh
	log.Info().Msg("config: reloaded from .env")
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}
