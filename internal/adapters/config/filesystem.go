package config

import (
	"io/fs"
	"os"
)

// FileSystem abstracts the filesystem reads of the loader.
type FileSystem interface {
	// Stat returns file info for the given path.
	Stat(path string) (fs.FileInfo, error)
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the os package.
type OSFS struct{}

// NewOSFS creates a new OSFS instance.
func NewOSFS() *OSFS {
	return &OSFS{}
}

// Stat returns file info for the given path.
func (o *OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// ReadFile reads the entire file at path.
func (o *OSFS) ReadFile(path string) ([]byte, error) {
	// #nosec G304 -- paths come from discovery
	return os.ReadFile(path)
}
