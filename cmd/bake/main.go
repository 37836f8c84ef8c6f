// Package main is the entry point for the bake build tool.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/bake/cmd/bake/commands"
	"go.trai.ch/bake/internal/app"
	"go.trai.ch/bake/internal/core/domain"
	_ "go.trai.ch/bake/internal/wiring"
)

// exitInterrupted is the conventional status of a process ended by SIGINT.
const exitInterrupted = 130

func main() {
	os.Exit(run())
}

func run(opts ...func(*app.App)) int {
	// 0. Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Initialize application components
	components, _, err := graft.ExecuteFor[*app.Components](ctx)
	if err != nil {
		// Logger is not available yet if initialization failed
		// Write directly to stderr
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}

	for _, opt := range opts {
		opt(components.App)
	}

	// 2. Interface - CLI
	cli := commands.New(components.App)

	// 3. Execution
	if err := cli.Execute(ctx); err != nil {
		switch {
		case errors.Is(err, domain.ErrBuildCancelled):
			return exitInterrupted
		case errors.Is(err, domain.ErrBuildFailed):
			// The renderer already reported the failed tasks.
			return 1
		}
		components.Logger.Error(err)
		return 1
	}
	return 0
}
