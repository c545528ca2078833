package predict

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchArtifact warns when the model file changes on disk. The loaded model is
// never swapped; picking up a new artifact requires a restart.
func WatchArtifact(ctx context.Context, path string, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	// watch the directory so replace-by-rename is seen too
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				logger.Warn("model artifact changed on disk; restart to load it",
					zap.String("path", abs),
					zap.String("op", event.Op.String()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("artifact watcher error", zap.Error(err))
		}
	}
}
