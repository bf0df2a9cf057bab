/*
store.go - Persistence contracts for offers and claims

PURPOSE:
  Defines the interface between the allocation engine and storage. The two
  stores share a shape (insert, lookup-overlapping, delete) and differ only
  in payload and in the claim store's offer-linked queries used for
  cascading withdrawal.

CONTRACT NOTES:
  - Insert is an unconditional append. The ENGINE pre-checks overlap under
    its per-resource lock before calling Insert; the store enforces no
    uniqueness so it stays reusable for the pool-counting case, where
    concurrent windows are legal up to capacity.
  - Queries take an asOf instant and return only records whose End is
    after it. Read paths must not surface expired rows even when the
    sweeper has not run yet.
  - "Not found" is never an error on queries or deletes; empty results and
    zero-row deletes are valid outcomes the caller inspects.

IMPLEMENTATIONS:
  - store/memory: RWMutex-guarded maps, for tests and single-process runs
  - store/sqlite: durable SQLite tables (WAL), for production
*/
package parking

import (
	"context"
	"time"
)

// OfferStore owns the "resource available" windows per resource.
type OfferStore interface {
	// Insert appends one offer. No uniqueness is enforced here.
	Insert(ctx context.Context, o Offer) error

	// InsertBatch appends several offers atomically; used for weekly
	// recurrence materialization. Either all rows land or none do.
	InsertBatch(ctx context.Context, offers []Offer) error

	// Get returns the offer by id. ok is false when absent.
	Get(ctx context.Context, id OfferID) (o Offer, ok bool, err error)

	// Overlapping returns active offers on the resource whose windows
	// intersect w, ordered by window start then creation time.
	Overlapping(ctx context.Context, resource ResourceID, w Window, asOf time.Time) ([]Offer, error)

	// ByResource returns all active offers on the resource, ordered by
	// window start then creation time.
	ByResource(ctx context.Context, resource ResourceID, asOf time.Time) ([]Offer, error)

	// ByOwner returns all active offers created by the owner.
	ByOwner(ctx context.Context, owner UserID, asOf time.Time) ([]Offer, error)

	// Resources returns the distinct resource ids with at least one
	// active offer.
	Resources(ctx context.Context, asOf time.Time) ([]ResourceID, error)

	// Delete removes one offer by id. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id OfferID) error

	// DeleteExpired removes every offer with End <= asOf and reports how
	// many rows went away.
	DeleteExpired(ctx context.Context, asOf time.Time) (int, error)
}

// ClaimStore owns the committed reservations per resource.
type ClaimStore interface {
	// Insert appends one claim. No uniqueness is enforced here.
	Insert(ctx context.Context, c Claim) error

	// Get returns the claim by id. ok is false when absent.
	Get(ctx context.Context, id ClaimID) (c Claim, ok bool, err error)

	// Overlapping returns active claims on the resource whose windows
	// intersect w, ordered by window start.
	Overlapping(ctx context.Context, resource ResourceID, w Window, asOf time.Time) ([]Claim, error)

	// ByResource returns all active claims on the resource, ordered by
	// window start.
	ByResource(ctx context.Context, resource ResourceID, asOf time.Time) ([]Claim, error)

	// ByClaimer returns all active claims made by the user.
	ByClaimer(ctx context.Context, claimer UserID, asOf time.Time) ([]Claim, error)

	// ByOffer returns every claim referencing the offer, active or not.
	// Used by the withdrawal cascade, which must catch everything.
	ByOffer(ctx context.Context, offer OfferID) ([]Claim, error)

	// Delete removes one claim by id. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id ClaimID) error

	// DeleteByOffer removes every claim referencing the offer and reports
	// the count. Safe to retry; the second run deletes nothing.
	DeleteByOffer(ctx context.Context, offer OfferID) (int, error)

	// DeleteExpired removes every claim with End <= asOf and reports how
	// many rows went away.
	DeleteExpired(ctx context.Context, asOf time.Time) (int, error)
}
