// Package broadcast defines the port for pushing orchestration events
// (routing decisions, phase changes, approval lifecycle) to connected clients.
package broadcast

import "context"

// Broadcaster sends a typed event to all connected clients. Implementations
// must not block the caller; slow clients are the adapter's problem.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Nop is a Broadcaster that discards every event. Useful for tests and for
// hosts that run without a realtime surface.
type Nop struct{}

// BroadcastEvent discards the event.
func (Nop) BroadcastEvent(context.Context, string, any) {}
