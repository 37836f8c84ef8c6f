package ports

import "go.trai.ch/bake/internal/core/domain"

// ConfigLoader defines the interface for loading the project model.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load discovers the workspace from cwd and reads every project it contains.
	Load(cwd string) (*domain.Workspace, error)

	// DiscoverConfigPaths returns the project files that make up the workspace,
	// mapped to their modification times in nanoseconds.
	DiscoverConfigPaths(cwd string) (map[string]int64, error)

	// DiscoverRoot walks up from cwd to the directory holding bake.work.yaml,
	// or the nearest project file when there is none.
	DiscoverRoot(cwd string) (string, error)
}
