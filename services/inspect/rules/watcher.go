// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the editor write/rename event bursts that follow
// a single file save into one reload.
const watchDebounce = 300 * time.Millisecond

// WatchFile reloads the store whenever the rule file changes on disk.
//
// # Description
//
// Starts an fsnotify watcher on the given path and triggers Store.Load on
// write/create/rename events, debounced. A failed reload keeps the previous
// snapshot published (Store.Load semantics) and is logged, never fatal.
// The watcher stops when ctx is canceled.
//
// # Inputs
//
//   - ctx: Controls the watcher lifetime. Must not be nil.
//   - store: The store to reload. Must not be nil.
//   - path: Rule file path. Must not be empty.
//   - logger: Logger. May be nil.
//
// # Outputs
//
//   - error: Non-nil when the watcher cannot be created or the path cannot
//     be watched. Runtime reload failures are logged, not returned.
//
// # Thread Safety
//
// Safe for concurrent use; the watch loop runs in its own goroutine.
func WatchFile(ctx context.Context, store *Store, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating rule file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching rule file %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		reload := func() {
			if err := store.Load(ctx); err != nil {
				logger.Warn("rule file reload failed, previous snapshot kept",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("rule file watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	logger.Info("rule file watcher started", slog.String("path", path))
	return nil
}
