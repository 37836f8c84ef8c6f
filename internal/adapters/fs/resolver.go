package fs

import (
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Resolver expands the file patterns of build phases.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolvePatterns expands glob patterns relative to root, keeping the order of the patterns.
// Matches of one pattern are sorted. Literal paths are kept as given even if they do not exist yet,
// since phases may refer to files generated during the build. A glob matching nothing is an error.
// Results are relative to root and free of duplicates.
func (r *Resolver) ResolvePatterns(patterns []string, root string) ([]string, error) {
	seen := make(map[string]bool, len(patterns))
	result := make([]string, 0, len(patterns))
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	for _, pattern := range patterns {
		if !isGlob(pattern) {
			add(filepath.Clean(pattern))
			continue
		}

		path := filepath.Join(root, pattern)
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "path", path)
		}
		if len(matches) == 0 {
			return nil, zerr.With(zerr.New("input not found"), "path", path)
		}

		slices.Sort(matches)
		for _, match := range matches {
			rel, err := filepath.Rel(root, match)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to relativize path"), "path", match)
			}
			add(rel)
		}
	}
	return result, nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}
