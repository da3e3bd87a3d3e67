package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store defines subscription persistence. It is the only shared mutable
// resource in the reconciliation path, so implementations must enforce two
// rules atomically:
//
//   - single-live: at most one record per reference id may hold a live
//     status (Create and Update return ErrDuplicateLive on breach);
//   - optimistic concurrency: Update succeeds only when the caller presents
//     the Version it read (ErrVersionMismatch otherwise), and the store bumps
//     Version on every write.
//
// Implementations write the bumped Version and refreshed timestamps back into
// the passed record so callers always hold the persisted state.
type Store interface {
	// Create inserts a new record. The store stamps CreatedAt/UpdatedAt and
	// sets Version to 1. Returns ErrSubscriptionExists when the id is taken.
	Create(ctx context.Context, sub *Subscription) error

	// Update replaces the record with the given state, checking Version.
	Update(ctx context.Context, sub *Subscription) error

	// Supersede moves the record identified by oldID to canceled and writes
	// the replacement (insert or update) in the same atomic step, so the
	// single-live invariant holds at every observable point.
	Supersede(ctx context.Context, oldID uuid.UUID, replacement *Subscription) error

	// ByID retrieves a record by its local id.
	// Returns ErrNotFound if no record exists.
	ByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// ByProviderID retrieves the record tracking the given provider
	// subscription id. Returns ErrNotFound if no record exists.
	ByProviderID(ctx context.Context, providerSubID string) (*Subscription, error)

	// ByReference lists all records for a reference, newest first.
	ByReference(ctx context.Context, referenceID string) ([]*Subscription, error)

	// LiveByReference returns the single live (active or trialing) record
	// for a reference. Returns ErrNotFound if none is live.
	LiveByReference(ctx context.Context, referenceID string) (*Subscription, error)

	// CurrentByReference returns the newest non-terminal record for a
	// reference, live or not. Returns ErrNotFound if all records are
	// terminal or none exist.
	CurrentByReference(ctx context.Context, referenceID string) (*Subscription, error)
}
