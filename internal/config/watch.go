package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file at path whenever it is written and calls
// onChange with the decoded file alone, until ctx is cancelled. Keys the
// file leaves out are zero, and onChange gets nil if the file vanished
// before it could be read. The parent directory is
// watched so editors that replace the file by renaming are seen too.
// Unparseable intermediate writes are passed to onErr and otherwise ignored.
func Watch(ctx context.Context, path string, onChange func(*Config), onErr func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			file, err := LoadFile(path, false)
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			onChange(file)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			if onErr != nil {
				onErr(err)
			}
		}
	}
}
