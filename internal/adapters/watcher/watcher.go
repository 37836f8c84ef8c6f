package watcher

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/bake/internal/adapters/fs" //nolint:depguard // Directory walking is shared with the hasher
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Watcher = (*Watcher)(nil)

// ignoredDirectories are never watched. Build products live below the bake directory.
var ignoredDirectories = []string{domain.BakeDirName, "node_modules"}

const eventChannelBuffer = 100

// Watcher implements recursive file system watching using fsnotify.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	walker    *fs.Walker
	logger    ports.Logger
	events    chan ports.WatchEvent
}

// NewWatcher creates a new file system watcher.
func NewWatcher(walker *fs.Walker, logger ports.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create file watcher")
	}
	return &Watcher{
		fsWatcher: w,
		walker:    walker,
		logger:    logger,
		events:    make(chan ports.WatchEvent, eventChannelBuffer),
	}, nil
}

// Start watches every directory below root and begins forwarding events.
func (w *Watcher) Start(ctx context.Context, root string) error {
	for dir := range w.walker.WalkDirs(root, ignoredDirectories) {
		if err := w.fsWatcher.Add(dir); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to watch directory"), "dir", dir)
		}
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher. The event sequence ends once pending events are drained.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// Events returns an iterator of file system events.
func (w *Watcher) Events() iter.Seq[ports.WatchEvent] {
	return func(yield func(ports.WatchEvent) bool) {
		for event := range w.events {
			if !yield(event) {
				return
			}
		}
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			watchEvent, ok := convertEvent(event)
			if !ok {
				continue
			}

			select {
			case w.events <- watchEvent:
			case <-ctx.Done():
				return
			}

			if watchEvent.Operation == ports.OpCreate {
				w.watchNewDirectory(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(fmt.Sprintf("watcher: %v", err))
		}
	}
}

// watchNewDirectory adds a freshly created directory and everything below it.
func (w *Watcher) watchNewDirectory(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	for _, ignored := range ignoredDirectories {
		if filepath.Base(path) == ignored {
			return
		}
	}
	for dir := range w.walker.WalkDirs(path, ignoredDirectories) {
		if err := w.fsWatcher.Add(dir); err != nil {
			w.logger.Debug(fmt.Sprintf("watcher: cannot watch %s: %v", dir, err))
		}
	}
}

func convertEvent(event fsnotify.Event) (ports.WatchEvent, bool) {
	switch {
	case event.Has(fsnotify.Write):
		return ports.WatchEvent{Path: event.Name, Operation: ports.OpWrite}, true
	case event.Has(fsnotify.Create):
		return ports.WatchEvent{Path: event.Name, Operation: ports.OpCreate}, true
	case event.Has(fsnotify.Remove):
		return ports.WatchEvent{Path: event.Name, Operation: ports.OpRemove}, true
	case event.Has(fsnotify.Rename):
		return ports.WatchEvent{Path: event.Name, Operation: ports.OpRename}, true
	default:
		return ports.WatchEvent{}, false
	}
}
