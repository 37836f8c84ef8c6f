package ports

import "go.trai.ch/bake/internal/core/domain"

// Hasher defines the interface for computing fingerprints.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// ComputeSignature fingerprints everything that describes the work of a task:
	// rule info, command line, environment, working directory, declared nodes and action payload.
	ComputeSignature(task *domain.Task) string

	// ComputeFileHash hashes the content of a file. A missing path hashes to "" without error.
	ComputeFileHash(path string) (string, error)

	// ComputeTreeHash hashes the recursive listing of a directory. A missing directory hashes to "".
	ComputeTreeHash(path string) (string, error)

	// Combine hashes an ordered list of parts into one fingerprint.
	Combine(parts ...string) string
}
