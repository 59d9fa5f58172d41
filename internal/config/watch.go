package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/paths"
)

// Watch reports on-disk changes to the assistant config until ctx is done.
// It only observes; the wake word is still resolved fresh on every iteration.
// onChange runs on the watcher goroutine.
func Watch(ctx context.Context, path string, onChange func()) error {
	expanded, err := paths.ExpandTilde(path)
	if err != nil {
		return err
	}
	if expanded == "" {
		return fmt.Errorf("config: nothing to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}

	// Watch the directory: editors and the parent replace the file rather than write in place.
	dir := filepath.Dir(expanded)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	L_debug("config: watching", "file", filepath.Base(expanded), "dir", dir)

	go watchLoop(ctx, watcher, filepath.Base(expanded), onChange)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string, onChange func()) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				L_info("config: assistant config changed", "file", target, "op", event.Op.String())
				if onChange != nil {
					onChange()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			L_warn("config: watcher error", "error", err)
		}
	}
}
