package io

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ImportFunc handles a pipeline file that appeared in a watched directory.
// Returning an error leaves the file eligible for another attempt on its next
// write event.
type ImportFunc func(path string) error

// ImportWatcher imports pipeline documents dropped into a directory.
type ImportWatcher struct {
	dir      string
	onImport ImportFunc
	logger   *slog.Logger
	seen     map[string]fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func NewImportWatcher(dir string, onImport ImportFunc, logger *slog.Logger) *ImportWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportWatcher{
		dir:      dir,
		onImport: onImport,
		logger:   logger,
		seen:     make(map[string]fileStamp),
	}
}

// Run watches until ctx is done. Only *.json files are considered; each
// version of a file is imported at most once.
func (w *ImportWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return errors.Wrapf(err, "unable to watch %s", w.dir)
	}
	w.logger.Info("IO: Watching for pipeline imports", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.handle(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("IO: Watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *ImportWatcher) handle(path string) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}

	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}
	if prev, ok := w.seen[path]; ok && prev == stamp {
		return
	}

	if err := w.onImport(path); err != nil {
		w.logger.Debug("IO: Import attempt failed", "filepath", path, "error", err)
		return
	}
	w.seen[path] = stamp
	w.logger.Info("IO: Pipeline imported from watched directory", "filepath", path)
}
