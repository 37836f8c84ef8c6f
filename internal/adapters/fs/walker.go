// Package fs provides file system adapters for walking, globbing and hashing files.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
)

// Walker provides file walking functionality.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkFiles yields every file below root together with any error met while walking.
// Paths start with root. VCS directories and directories matching an ignore pattern are skipped.
func (w *Walker) WalkFiles(root string, ignores []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				yield(path, err)
				return filepath.SkipAll
			}

			if path != root && w.ignored(d, ignores) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			if !yield(path, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// WalkDirs yields every directory below root, root included, with the same skipping rules as WalkFiles.
func (w *Walker) WalkDirs(root string, ignores []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // Unreadable directories are not watched
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && w.ignored(d, ignores) {
				return filepath.SkipDir
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// ignored reports whether an entry is excluded from walks.
func (w *Walker) ignored(d fs.DirEntry, ignores []string) bool {
	name := d.Name()
	if d.IsDir() && (name == ".git" || name == ".jj") {
		return true
	}
	for _, ignore := range ignores {
		if matched, _ := filepath.Match(ignore, name); matched {
			return true
		}
	}
	return false
}
