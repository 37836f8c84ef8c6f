// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"

	"go.trai.ch/bake/internal/core/domain"
)

// Executor defines the interface for executing tasks.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs the command line or in-process action of the given task.
	//
	// Output is streamed to stdout and stderr as it is produced. When ctx is
	// cancelled, tasks that are safe to interrupt receive an interrupt signal;
	// the others are allowed to finish.
	//
	// A failed command returns an error that unwraps to a value implementing ExitCoder.
	Execute(ctx context.Context, task *domain.Task, stdout, stderr io.Writer) error
}

// ExitCoder is implemented by errors that carry a process exit code.
type ExitCoder interface {
	ExitCode() int
}
