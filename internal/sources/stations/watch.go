package stations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// Watch blocks until ctx is cancelled, signalling changed (without
// blocking) each time the document is written, replaced or removed.
//
// The parent directory is watched rather than the file: editors and the
// GUI replace the document by rename, which drops a per-file watch.
func (s *Store) Watch(ctx context.Context, changed chan<- struct{}, log logger.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	log.Info("watching configuration file", logger.String("path", s.filePath))
	target := filepath.Clean(s.filePath)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			log.Debug("external config change detected", logger.String("op", event.Op.String()))
			s.Touch()
			select {
			case changed <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			// Keep watching; the revision poll still catches changes.
			log.Error("file watcher error", logger.Error(err))
		}
	}
}
