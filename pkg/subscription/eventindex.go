package subscription

import (
	"context"
	"sync"
)

// EventIndex records which webhook events (and once-only callbacks) have been
// consumed. Seen and Mark are split on purpose: an event is marked only after
// it applied cleanly, so a failed application stays unmarked and the
// provider's redelivery can succeed.
type EventIndex interface {
	// Seen reports whether the key was marked before.
	Seen(ctx context.Context, key string) (bool, error)

	// Mark records the key as consumed.
	Mark(ctx context.Context, key string) error
}

// MemoryEventIndex is a process-local EventIndex for tests and single-node
// deployments. Entries are kept for the process lifetime; use the Redis index
// when redeliveries must be deduplicated across restarts or replicas.
type MemoryEventIndex struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryEventIndex returns an empty in-memory index.
func NewMemoryEventIndex() *MemoryEventIndex {
	return &MemoryEventIndex{keys: make(map[string]struct{})}
}

func (i *MemoryEventIndex) Seen(ctx context.Context, key string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, seen := i.keys[key]
	return seen, nil
}

func (i *MemoryEventIndex) Mark(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.keys[key] = struct{}{}
	return nil
}
