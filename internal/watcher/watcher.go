// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package watcher hot-reloads the YAML configuration. It watches the config
// file's directory (editors replace files by rename, which breaks per-file
// watches) and re-parses on change, handing the fresh config to a callback.
// A config that fails to load keeps the previous one active.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/routeAILocal/internal/config"
)

// settleDelay gives editors time to finish write-then-rename sequences
// before the file is re-read.
const settleDelay = 100 * time.Millisecond

// ReloadFunc receives each successfully reloaded configuration.
type ReloadFunc func(cfg *config.Config)

// Watcher re-reads one config file on filesystem change.
type Watcher struct {
	configPath string
	onReload   ReloadFunc
	fsw        *fsnotify.Watcher

	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a Watcher for configPath. Start must be called to begin
// watching.
func New(configPath string, onReload ReloadFunc) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("watcher: reload callback is required")
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve config path: %w", err)
	}
	return &Watcher{
		configPath: abs,
		onReload:   onReload,
		stop:       make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory in a background
// goroutine.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.configPath)); err != nil {
		fsw.Close()
		return fmt.Errorf("watcher: watch %s: %w", filepath.Dir(w.configPath), err)
	}
	w.fsw = fsw

	go w.loop()
	log.Infof("watching %s for configuration changes", w.configPath)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.fsw != nil {
			w.fsw.Close()
		}
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			log.Infof("configuration changed (%s), reloading", event.Op)
			time.Sleep(settleDelay)
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Errorf("configuration watcher error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.configPath
}

func (w *Watcher) reload() {
	cfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		log.Errorf("configuration reload failed, keeping previous: %v", err)
		return
	}
	w.onReload(cfg)
}
