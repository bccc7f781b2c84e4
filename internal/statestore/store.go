// Package statestore defines the shared state store every actor coordinates
// through: a path-addressable document store with last-write-wins per path and
// push notifications. Implementations live under internal/infra.
package statestore

import "context"

// Event signals that the value at Path changed. Delivery is at-least-once per
// retained change with no ordering guarantee across paths; a slow subscriber
// may see consecutive changes coalesced, which is sound under last-write-wins
// because Get always returns the latest value.
type Event struct {
	Path string
}

// Store is the minimum coordination surface the game core needs. There are no
// cross-path transactions; anything that must be visible atomically has to
// live under a single path.
type Store interface {
	// Get JSON-decodes the value at path into out. Returns
	// domain.ErrNotFound when the path has never been written.
	Get(ctx context.Context, path string, out any) error

	// Set fully replaces the value at path (last-write-wins) and notifies
	// subscribers.
	Set(ctx context.Context, path string, value any) error

	// Update merges fields into the JSON object at path in one logical write.
	// Missing paths are treated as an empty object.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Subscribe returns a channel of change events for every path at or under
	// prefix. The cancel func must be called to release the subscription.
	Subscribe(ctx context.Context, prefix string) (<-chan Event, func(), error)
}
