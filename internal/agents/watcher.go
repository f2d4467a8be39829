package agents

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the registry from path whenever the file changes, until ctx
// is cancelled. The parent directory is watched so editors that replace the
// file via rename are picked up.
func (r *Registry) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create agents watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch agents directory: %w", err)
	}

	target := filepath.Clean(path)
	go func() {
		defer func() { _ = w.Close() }()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(reloadDebounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Agents watcher error", "error", err)
			case <-pending:
				pending = nil
				r.reload(path, logger)
			}
		}
	}()
	return nil
}

func (r *Registry) reload(path string, logger *slog.Logger) {
	names, err := readFile(path)
	if err == nil {
		err = r.Replace(names)
	}
	if err != nil {
		logger.Warn("Agents file reload failed, keeping current set", "path", path, "error", err)
		return
	}
	logger.Info("Agents reloaded", "path", path, "agents", r.Names())
}
