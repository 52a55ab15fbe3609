package localstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reports changes made to the store file by other processes. The
// directory is watched rather than the file because writers replace the file
// by rename. onChange runs on the watcher goroutine after the backend has
// reloaded. Watching stops when ctx is done.
func (b *FileBackend) Watch(ctx context.Context, onChange func(), log *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(b.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	name := filepath.Base(b.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				changed, err := b.Reload()
				if err != nil {
					log.Warn("reload local store", zap.Error(err))
					continue
				}
				if changed {
					log.Debug("local store changed on disk", zap.String("path", b.path))
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("store watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
