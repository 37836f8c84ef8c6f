// Package cache keeps planned build descriptions in memory between builds of one process.
package cache

import (
	"maps"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.DescriptionCache = (*DescriptionCache)(nil)

// DefaultSize is the number of descriptions kept by NewDescriptionCache callers that have no preference.
const DefaultSize = 32

type entry struct {
	mtimes      map[string]int64
	description *domain.BuildDescription
}

// DescriptionCache is an LRU of build descriptions keyed by request signature.
//
// An entry is only served while every project file it was planned from still has the
// modification time recorded at Put. The times are trusted as given; the cache never stats.
type DescriptionCache struct {
	entries *lru.Cache[string, entry]
}

// NewDescriptionCache creates a cache holding at most size descriptions.
func NewDescriptionCache(size int) (*DescriptionCache, error) {
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create description cache"), "size", size)
	}
	return &DescriptionCache{entries: entries}, nil
}

// Get returns the description planned for signature if mtimes match the recorded ones exactly.
// A stale entry is evicted.
func (c *DescriptionCache) Get(signature string, mtimes map[string]int64) (*domain.BuildDescription, bool) {
	e, ok := c.entries.Get(signature)
	if !ok {
		return nil, false
	}
	if !maps.Equal(e.mtimes, mtimes) {
		c.entries.Remove(signature)
		return nil, false
	}
	return e.description, true
}

// Put records description under signature.
func (c *DescriptionCache) Put(signature string, mtimes map[string]int64, description *domain.BuildDescription) {
	c.entries.Add(signature, entry{mtimes: maps.Clone(mtimes), description: description})
}

// Len returns the number of cached descriptions.
func (c *DescriptionCache) Len() int {
	return c.entries.Len()
}
