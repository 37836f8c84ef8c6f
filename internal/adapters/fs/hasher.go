package fs

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// directoryMarker is the content hash reported for directories, which exist but have no content of their own.
const directoryMarker = "directory"

// Hasher provides hashing functionality for tasks and files.
type Hasher struct {
	walker *Walker
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker) *Hasher {
	return &Hasher{walker: walker}
}

// ComputeSignature hashes everything that describes the work of a task.
func (h *Hasher) ComputeSignature(task *domain.Task) string {
	hasher := xxhash.New()

	writeSection(hasher, task.RuleInfo...)
	writeSection(hasher, task.CommandLine...)
	h.hashEnvironment(task.Environment, hasher)
	writeSection(hasher, task.WorkingDirectory)

	for _, nodes := range [][]domain.Node{task.Inputs, task.Outputs} {
		names := make([]string, len(nodes))
		for i, n := range nodes {
			names[i] = n.String()
		}
		writeSection(hasher, names...)
	}

	if task.Action != nil {
		writeSection(hasher, task.Action.Kind(), task.Action.Signature())
	}

	return fmt.Sprintf("%016x", hasher.Sum64())
}

// hashEnvironment hashes environment variables in a deterministic order.
func (h *Hasher) hashEnvironment(env map[string]string, hasher *xxhash.Digest) {
	for _, k := range slices.Sorted(maps.Keys(env)) {
		_, _ = hasher.WriteString(k)
		_, _ = hasher.Write([]byte{'='})
		_, _ = hasher.WriteString(env[k])
		_, _ = hasher.Write([]byte{0})
	}
	_, _ = hasher.Write([]byte{0})
}

func writeSection(hasher *xxhash.Digest, parts ...string) {
	for _, p := range parts {
		_, _ = hasher.WriteString(p)
		_, _ = hasher.Write([]byte{0})
	}
	_, _ = hasher.Write([]byte{0})
}

// ComputeFileHash computes the XXHash of a file's content.
// A missing path hashes to "" and a directory to a fixed marker.
func (h *Hasher) ComputeFileHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", nil
		}
		return "", zerr.With(domain.Wrap(domain.ErrPathStatFailed, err), "path", path)
	}
	if info.IsDir() {
		return directoryMarker, nil
	}

	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return "", zerr.With(domain.Wrap(domain.ErrFileOpenFailed, err), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", zerr.With(domain.Wrap(domain.ErrFileHashFailed, err), "path", path)
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

// ComputeTreeHash hashes the names of every file below path, relative to it.
// File contents do not contribute.
func (h *Hasher) ComputeTreeHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", nil
		}
		return "", zerr.With(domain.Wrap(domain.ErrPathStatFailed, err), "path", path)
	}
	if !info.IsDir() {
		return h.ComputeFileHash(path)
	}

	var names []string
	for file, walkErr := range h.walker.WalkFiles(path, nil) {
		if walkErr != nil {
			return "", zerr.With(domain.Wrap(domain.ErrDirectoryWalkFailed, walkErr), "path", path)
		}
		rel, err := filepath.Rel(path, file)
		if err != nil {
			return "", zerr.With(domain.Wrap(domain.ErrDirectoryWalkFailed, err), "path", file)
		}
		names = append(names, filepath.ToSlash(rel))
	}
	slices.Sort(names)

	hasher := xxhash.New()
	writeSection(hasher, names...)
	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

// Combine hashes an ordered list of parts into one fingerprint.
func (h *Hasher) Combine(parts ...string) string {
	hasher := xxhash.New()
	writeSection(hasher, parts...)
	return fmt.Sprintf("%016x", hasher.Sum64())
}
