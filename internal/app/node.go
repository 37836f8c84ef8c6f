package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/bake/internal/adapters/cache"   //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/adapters/cas"     //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/adapters/config"  //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/adapters/logger"  //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/adapters/watcher" //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/scheduler"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			scheduler.NodeID,
			cas.NodeID,
			cache.NodeID,
			watcher.NodeID,
			logger.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewComponents(app, log), nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	sched, err := graft.Dep[*scheduler.Scheduler](ctx)
	if err != nil {
		return nil, err
	}

	opener, err := graft.Dep[*cas.Opener](ctx)
	if err != nil {
		return nil, err
	}

	descriptions, err := graft.Dep[ports.DescriptionCache](ctx)
	if err != nil {
		return nil, err
	}

	w, err := graft.Dep[ports.Watcher](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	openStore := func(root string) ports.SignatureStore { return opener.Open(root) }
	return New(loader, sched, openStore, descriptions, w, log), nil
}
