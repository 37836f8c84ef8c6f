package cache

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/bake/internal/core/ports"
)

// NodeID is the unique identifier for the description cache Graft node.
const NodeID graft.ID = "adapter.description_cache"

func init() {
	graft.Register(graft.Node[ports.DescriptionCache]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.DescriptionCache, error) {
			return NewDescriptionCache(DefaultSize)
		},
	})
}
