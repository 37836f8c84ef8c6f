package ports

import "go.trai.ch/bake/internal/core/domain"

// DescriptionCache holds build descriptions between builds of a long-running process.
//
//go:generate go run go.uber.org/mock/mockgen -source=description_cache.go -destination=mocks/mock_description_cache.go -package=mocks
type DescriptionCache interface {
	// Get returns the cached description for the request signature if the project
	// files it was planned from still have the given modification times.
	Get(signature string, mtimes map[string]int64) (*domain.BuildDescription, bool)

	// Put stores a description together with the modification times it was planned from.
	Put(signature string, mtimes map[string]int64, description *domain.BuildDescription)
}
