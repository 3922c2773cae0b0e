package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitFor blocks until path exists, the timeout elapses, or ctx ends. It
// watches the parent directory (or its parent, when the directory itself
// has not been created yet, as with /dev/input/by-id before the first
// keyboard is plugged in). A zero timeout waits indefinitely.
func WaitFor(ctx context.Context, path string, timeout time.Duration) error {
	if exists(path) {
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	watched := dir
	if !exists(dir) {
		watched = filepath.Dir(dir)
	}
	if err := watcher.Add(watched); err != nil {
		return &Error{Op: "watch", Path: watched, Err: err}
	}

	// The node may have appeared between the first check and Add.
	if exists(path) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return &Error{Op: "wait", Path: path, Err: ctx.Err()}

		case event, ok := <-watcher.Events:
			if !ok {
				return &Error{Op: "wait", Path: path, Err: os.ErrClosed}
			}
			if watched != dir && event.Name == dir && event.Op&fsnotify.Create != 0 {
				if err := watcher.Add(dir); err == nil {
					watched = dir
				}
			}
			if exists(path) {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return &Error{Op: "wait", Path: path, Err: os.ErrClosed}
			}
			return &Error{Op: "watch", Path: watched, Err: err}
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
