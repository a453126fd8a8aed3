package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchConfig watches the config file and calls apply with each freshly
// validated config. Editors rewrite files with bursts of events, so
// reloads are debounced. An invalid file is logged and skipped; the
// running config stays in effect.
func watchConfig(ctx context.Context, path string, log *slog.Logger, apply func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// watch the directory: editors replace the file, which drops a watch
	// on the file itself
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(path)
	log.Info("config watcher started", slog.String("path", path))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(500 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(500 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			log.Info("config watcher stopped")
			return ctx.Err()

		case <-reloadCh:
			next, err := Load(path)
			if err != nil {
				log.Error("config reload skipped", slog.String("error", err.Error()))
				continue
			}
			apply(next)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}
