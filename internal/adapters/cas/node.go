package cas

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the unique identifier for the signature store Graft node.
const NodeID graft.ID = "adapter.signature_store"

func init() {
	graft.Register(graft.Node[*Opener]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Opener, error) {
			return NewOpener(), nil
		},
	})
}
