package ports

import "go.trai.ch/bake/internal/core/domain"

// SignatureStore defines the interface for persisting task records between builds.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type SignatureStore interface {
	// Get retrieves the record of the last successful run of a task.
	// It returns nil and no error when the task never ran.
	Get(key string) (*domain.TaskRecord, error)

	// Put stores the record of a successful run.
	Put(record domain.TaskRecord) error
}
