package ports

import "go.trai.ch/bake/internal/core/domain"

// BuildEventSink receives the event stream of a build operation.
// Emit calls are serialized and arrive in stream order.
//
//go:generate go run go.uber.org/mock/mockgen -source=events.go -destination=mocks/mock_events.go -package=mocks
type BuildEventSink interface {
	Emit(event domain.BuildEvent)
}

// BuildEventSinkFunc adapts a function to BuildEventSink.
type BuildEventSinkFunc func(event domain.BuildEvent)

// Emit calls f(event).
func (f BuildEventSinkFunc) Emit(event domain.BuildEvent) {
	f(event)
}
