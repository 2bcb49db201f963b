package workload

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kloudmate/header-resolver/detector"
)

// Document event kinds, named after the editor signals they stand in for.
const (
	EventDocumentNew    = "document-new"
	EventDocumentOpen   = "document-open"
	EventDocumentReload = "document-reload"
)

// eventKind maps an fsnotify event to a document event. Removals, renames
// and chmods leave nothing new to classify and map to "".
func eventKind(event fsnotify.Event) string {
	switch {
	case event.Has(fsnotify.Create):
		return EventDocumentNew
	case event.Has(fsnotify.Write):
		return EventDocumentReload
	}
	return ""
}

// WatchLogger receives watcher events.
type WatchLogger interface {
	WatchStarted(root string)
	WatchStopped(root string)
	DocumentEvent(kind, path string)
	WatchError(root string, err error)
	DocumentReadFailed(path string, err error)
}

// WatchWorkspace resolves every candidate under root once (document-open) and
// then re-resolves candidates as they are created or written, until ctx is
// done. Bursts of events for one path are debounced and hidden directories
// are never watched. Each resolution is passed to emit and offered to the
// resolver queue.
func WatchWorkspace(ctx context.Context, wg *sync.WaitGroup, root string, resolver *detector.HeaderResolver, logger WatchLogger, emit func(kind string, res detector.Resolution)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// fsnotify is not recursive; every directory is registered on its own
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if hiddenDir(root, path, d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	handle := func(kind, path string) {
		logger.DocumentEvent(kind, path)
		res, ok, err := resolver.ResolveFile(path, detector.LanguageUnknown)
		if err != nil {
			logger.DocumentReadFailed(path, err)
			return
		}
		if !ok {
			return
		}
		res.Source = "watch"
		resolver.Enqueue(res)
		if emit != nil {
			emit(kind, res)
		}
	}

	files, err := CollectCandidates(root, resolver.Filter)
	if err != nil {
		fsw.Close()
		return err
	}
	for _, path := range files {
		handle(EventDocumentOpen, path)
	}

	debounce := newDebouncer(debounceWindow, handle)

	logger.WatchStarted(root)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer fsw.Close()
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.WatchStopped(root)
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if hiddenDir(root, event.Name, filepath.Base(event.Name)) {
							continue
						}
						if err := fsw.Add(event.Name); err != nil {
							logger.WatchError(root, err)
						}
						continue
					}
				}
				kind := eventKind(event)
				if kind == "" {
					continue
				}
				debounce.Add(kind, event.Name)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.WatchError(root, err)
			}
		}
	}()
	return nil
}
