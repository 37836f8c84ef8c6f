package ports

import (
	"context"
	"iter"
)

// WatchOp represents the type of file system operation.
type WatchOp uint8

const (
	// OpCreate indicates a file or directory was created.
	OpCreate WatchOp = iota
	// OpWrite indicates a file was modified.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
)

// ChangesLayout reports whether the operation can change which files a glob matches.
func (op WatchOp) ChangesLayout() bool {
	return op != OpWrite
}

// WatchEvent represents a file system event from the watcher.
type WatchEvent struct {
	Path      string
	Operation WatchOp
}

// Watcher reports changes below a workspace root. Events ends after Stop.
//
//go:generate go run go.uber.org/mock/mockgen -source=watcher.go -destination=mocks/mock_watcher.go -package=mocks
type Watcher interface {
	// Start watches root and every directory below it, including directories created later.
	Start(ctx context.Context, root string) error
	Stop() error
	Events() iter.Seq[WatchEvent]
}
