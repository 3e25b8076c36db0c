package indexer

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scipsync/scipsync/internal/apperr"
	"github.com/scipsync/scipsync/internal/artifact"
	"github.com/scipsync/scipsync/internal/workspace"
)

// debounceWindow suppresses duplicate events editors fire on save.
const debounceWindow = 500 * time.Millisecond

// Watch re-runs the single-file fast path whenever a workspace-known
// source file changes, until ctx is cancelled. The watch list is the set
// of directories containing recorded files at startup; the manifest for
// each event is looked up fresh from the persisted document, so a full
// sync running meanwhile is picked up on the next event.
func Watch(ctx context.Context, root, cacheDir string, ix *Indexer, syncer *artifact.Syncer, logger *slog.Logger) error {
	store, err := workspace.Load(cacheDir)
	if err != nil {
		logger.Warn("watch: workspace unreadable, starting empty", slog.String("error", err.Error()))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dirs := make(map[string]struct{})
	for file := range store.Files {
		dirs[filepath.Join(root, filepath.Dir(file))] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			logger.Warn("watch: add dir failed", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}
	logger.Info("watch: started", slog.Int("dirs", len(dirs)))

	lastRun := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			if time.Since(lastRun[rel]) < debounceWindow {
				continue
			}
			lastRun[rel] = time.Now()

			manifest, lookupErr := workspace.ManifestForFile(cacheDir, rel)
			if lookupErr != nil {
				if !errors.Is(lookupErr, apperr.ErrNotFound) {
					logger.Warn("watch: manifest lookup failed",
						slog.String("file", rel),
						slog.String("error", lookupErr.Error()))
				}
				continue
			}

			out, idxErr := ix.IndexFile(ctx, root, rel, manifest)
			if idxErr != nil {
				logger.Warn("watch: index failed", slog.String("file", rel), slog.String("error", idxErr.Error()))
				continue
			}
			if regErr := syncer.Register(out); regErr != nil {
				logger.Warn("watch: register failed", slog.String("file", rel), slog.String("error", regErr.Error()))
				continue
			}
			logger.Debug("watch: reindexed", slog.String("file", rel))

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}
