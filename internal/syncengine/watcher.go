package syncengine

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the store root and keeps the index in
// step with out-of-band edits (external editors, git checkouts) until ctx is
// cancelled. It calls cb (if non-nil) after each successful change.
//
// New directories created at runtime are added to the watch list. Rename
// events schedule a short debounced rebuild, because fsnotify reports only
// the old path and the new one may land anywhere in the tree.
func Watch(ctx context.Context, engine *Engine, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var rebuildTimer *time.Timer
	var rebuildCh <-chan time.Time

	scheduleRebuild := func() {
		if rebuildTimer == nil {
			rebuildTimer = time.NewTimer(200 * time.Millisecond)
			rebuildCh = rebuildTimer.C
		} else {
			rebuildTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rebuildTimer != nil {
				rebuildTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rebuildCh:
			if _, err := engine.Rebuild(ctx); err != nil {
				logger.Warn("watcher: rebuild failed", slog.String("error", err.Error()))
			} else if cb != nil {
				cb("updated", "")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			abs := ev.Name
			if strings.HasPrefix(filepath.Base(abs), ".") {
				continue // dotfiles, including atomic-write temp files
			}

			// New directories: watch them and sync whatever they contain.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", abs), slog.String("error", addErr.Error()))
					}
					syncNewDir(ctx, engine, root, abs, logger, cb)
					continue
				}
			}

			rel, relErr := filepath.Rel(root, abs)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if err := engine.SyncPath(ctx, rel); err != nil {
					logger.Warn("watcher: sync failed",
						slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: synced", slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(kind, rel)
				}

			case ev.Op&fsnotify.Remove != 0:
				if err := engine.SyncPath(ctx, rel); err != nil {
					logger.Warn("watcher: remove failed",
						slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: removed", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives as
				// a separate Create if it stays inside a watched dir. Drop
				// the old entry now and schedule a rebuild for stragglers.
				if err := engine.SyncPath(ctx, rel); err == nil {
					logger.Debug("watcher: rename old removed", slog.String("path", rel))
					if cb != nil {
						cb("deleted", rel)
					}
				}
				scheduleRebuild()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// syncNewDir indexes entity files found in a newly created directory, e.g. a
// whole subject tree dropped in by a git checkout.
func syncNewDir(ctx context.Context, engine *Engine, root, dir string, logger *slog.Logger, cb EventCallback) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if syncErr := engine.SyncPath(ctx, rel); syncErr == nil {
			logger.Debug("watcher: synced from new dir", slog.String("path", rel))
			if cb != nil {
				cb("created", rel)
			}
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
