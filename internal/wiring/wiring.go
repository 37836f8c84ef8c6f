// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/bake/internal/adapters/cache"
	_ "go.trai.ch/bake/internal/adapters/cas"
	_ "go.trai.ch/bake/internal/adapters/config"
	_ "go.trai.ch/bake/internal/adapters/fs"
	_ "go.trai.ch/bake/internal/adapters/logger"
	_ "go.trai.ch/bake/internal/adapters/shell"
	_ "go.trai.ch/bake/internal/adapters/telemetry"
	_ "go.trai.ch/bake/internal/adapters/watcher"
	// Register app and engine nodes.
	_ "go.trai.ch/bake/internal/app"
	_ "go.trai.ch/bake/internal/engine/scheduler"
)
