package daemon

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Editors usually replace the file rather than write in place, so a
// save shows up as a burst of create/rename/write events.
const watchSettle = 250 * time.Millisecond

// watchRules emits on the returned channel, at most one pending signal,
// whenever the rules file is rewritten. The parent directory is watched
// so replace-on-save is seen too.
func watchRules(path string, log *zap.SugaredLogger) (<-chan struct{}, func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	changed := make(chan struct{}, 1)
	go func() {
		var settle <-chan time.Time
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				settle = time.After(watchSettle)

			case <-settle:
				settle = nil
				select {
				case changed <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnw("rules watcher", "error", err)
			}
		}
	}()

	return changed, watcher.Close, nil
}
