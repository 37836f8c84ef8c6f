package watcher

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/bake/internal/adapters/fs"     //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/bake/internal/adapters/logger" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/bake/internal/core/ports"
)

// NodeID is the unique identifier for the file watcher Graft node.
const NodeID graft.ID = "adapter.watcher"

func init() {
	graft.Register(graft.Node[ports.Watcher]{
		ID:        NodeID,
		Cacheable: false,
		DependsOn: []graft.ID{fs.WalkerNodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.Watcher, error) {
			walker, err := graft.Dep[*fs.Walker](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewWatcher(walker, log)
		},
	})
}
