// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceWindow coalesces the event bursts editors and atomic-rename
// writers produce for a single save.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads the configuration file on change and hands validated
// results to a callback. A reload that fails validation is logged and
// discarded; the previous configuration stays active.
type Watcher struct {
	path    string
	onLoad  func(*File)
	log     zerolog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for path. onLoad is called with each
// successfully validated reload.
func NewWatcher(path string, onLoad func(*File), log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors that write via rename
	// replace the inode and a file watch would go stale.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		onLoad:  onLoad,
		log:     log,
		watcher: fsw,
	}, nil
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("config watch error")

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	f, err := Load(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("config reload rejected, keeping previous")
		return
	}
	w.log.Info().Str("path", w.path).Int("models", len(f.Models)).Msg("config reloaded")
	w.onLoad(f)
}
