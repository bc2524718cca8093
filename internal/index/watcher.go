package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lexicon/internal/storage"
	"github.com/starford/lexicon/internal/term"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted"; name is the term name.
type EventCallback func(kind string, name string)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the project root and keeps the index
// in step with edits made outside the running process, until ctx is
// cancelled. It calls cb (if non-nil) after each index mutation.
//
// Writes to a term's description.json or links.json reindex that term.
// Changes to terms.json, removals and renames schedule a debounced
// reconciliation pass over the whole project. Term directories created at
// runtime are added to the watch list.
func Watch(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	root := store.Root()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := reconcile(db, store, logger, cb); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if storage.IsTemp(ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					scheduleReconcile()
					continue
				}
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			if rel == term.IndexFile {
				scheduleReconcile()
				continue
			}
			name, file := filepath.Split(rel)
			name = filepath.Clean(name)
			if name == "." || filepath.Dir(name) != "." || (file != term.DescriptionFile && file != term.LinksFile) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				names, listErr := projectTerms(store)
				if listErr != nil || !slices.Contains(names, name) {
					// Not in terms.json yet; the index rewrite that follows
					// a save triggers a reconcile.
					continue
				}
				before, _ := db.GetChecksum(name)
				if idxErr := IndexTerm(db, store, name); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("term", name), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if before == "" {
					kind = "created"
				}
				logger.Debug("watcher: indexed", slog.String("term", name), slog.String("op", kind))
				if cb != nil {
					cb(kind, name)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
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
