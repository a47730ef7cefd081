package credentials

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Store whenever one of its credential files changes
// on disk. It is strictly opt-in: the Store contract stays
// operator-triggered reload, and the watcher only calls Reload, so the
// fail-safe old-snapshot semantics are identical on both paths.
//
// Credential rotation tooling typically replaces files via rename, so
// the watcher listens on the directory rather than the files themselves.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	logger  Logger
}

// NewWatcher creates a watcher for the store's credentials directory.
func NewWatcher(store *Store, logger Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("credentials: failed to create watcher: %w", err)
	}

	dir := filepath.Dir(store.clientPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("credentials: failed to watch %s: %w", dir, err)
	}

	return &Watcher{store: store, watcher: fsw, logger: logger}, nil
}

// Watch blocks processing file events until the context is cancelled or
// the underlying watcher fails. A failed reload keeps the previous
// snapshot and is logged, not propagated: a later event will retry.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if err := w.store.Reload(); err != nil && w.logger != nil {
				w.logger.Printf("credentials: reload after %s failed: %v", event.Op, err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.logger != nil {
				w.logger.Printf("credentials: watch error: %v", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.store.clientPath || name == w.store.userPath
}
