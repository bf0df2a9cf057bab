/*
Package parking implements the interval-allocation core for a fixed
inventory of building parking spots.

PURPOSE:
  Residents offer their own spots during windows of absence; other
  residents claim sub-intervals of those offers; a pooled set of staff
  spots and a permanent guest spot follow their own allocation rules.
  This package owns the hard part: time-bounded ownership and claims over
  discrete resources, overlap validation, availability gaps, blackout and
  duration policies, and cascading withdrawal.

WHAT LIVES WHERE:
  types.go        Identifiers, resource classes, Offer/Claim records, Layout
  window.go       Half-open Window value type and week-relative resolution
  errors.go       Sentinel and structured error kinds
  store.go        OfferStore / ClaimStore persistence contracts
  engine.go       AllocationEngine: validate-then-commit pipelines
  blackout.go     Recurring staff blackout calendar
  availability.go Gap computation and status reporting
  sweeper.go      Periodic purge of expired records
  stats.go        Utilization accounting

COLLABORATORS (out of scope here):
  Command transport, persistence technology, identity resolution and
  message rendering are all callers. The engine consumes a user id, a
  resource id and a Window; it returns typed results and error kinds.
*/
package parking

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ResourceID numbers a concrete spot (resident spots and the guest spot)
// or names the staff pool pseudo-resource.
type ResourceID int

// StaffPool is the pseudo-resource all staff claims attach to. Individual
// pool slots are internal bookkeeping and never user-visible.
const StaffPool ResourceID = -1

type UserID string

type OfferID string

type ClaimID string

// =============================================================================
// RESOURCE CLASSES
// =============================================================================

// Class determines the allocation rules for a resource: whether an Offer
// is required and whether capacity is per-unit or pooled.
type Class string

const (
	// ClassResident spots are individually owned; they become claimable
	// only while their owner has an active Offer.
	ClassResident Class = "resident"

	// ClassGuest is the singleton guest spot, implicitly offered for a
	// rolling 7-day horizon. System-owned.
	ClassGuest Class = "guest"

	// ClassStaff is the pooled set of interchangeable staff slots.
	ClassStaff Class = "staff"
)

// SystemOwner is the owner recorded on guest claims, which have no
// resident behind them.
const SystemOwner UserID = "system"

// =============================================================================
// LAYOUT - The building's static resource inventory
// =============================================================================

// Layout enumerates the building's spots. The set is fixed at startup;
// there is no runtime registration.
type Layout struct {
	ResidentSpots []ResourceID
	GuestSpot     ResourceID
	StaffPoolSize int

	residentSet map[ResourceID]bool
}

// NewLayout builds a Layout and indexes the resident set.
func NewLayout(resident []ResourceID, guest ResourceID, poolSize int) Layout {
	set := make(map[ResourceID]bool, len(resident))
	for _, id := range resident {
		set[id] = true
	}
	return Layout{
		ResidentSpots: resident,
		GuestSpot:     guest,
		StaffPoolSize: poolSize,
		residentSet:   set,
	}
}

// ClassOf resolves a resource id to its class. ok is false for ids outside
// the building.
func (l Layout) ClassOf(id ResourceID) (Class, bool) {
	switch {
	case l.residentSet[id]:
		return ClassResident, true
	case id == l.GuestSpot:
		return ClassGuest, true
	case id == StaffPool:
		return ClassStaff, true
	}
	return "", false
}

// =============================================================================
// RECORDS
// =============================================================================

// Offer is a resident's statement "my spot is free for others during this
// window". Offers exist only for resident-class resources and are immutable
// once created; editing is delete + recreate.
type Offer struct {
	ID        OfferID
	Resource  ResourceID
	Owner     UserID
	Window    Window
	CreatedAt time.Time
}

// Claim is a committed reservation. Resident claims reference the Offer
// that covers them (and inherit its owner for notification); guest and
// staff claims have no offer. Staff claims additionally record the pool
// slot they were bucketed into.
type Claim struct {
	ID        ClaimID
	Resource  ResourceID
	Claimer   UserID
	Owner     UserID
	OfferID   OfferID // empty for guest and staff claims
	Slot      int     // staff pool bookkeeping; zero otherwise
	Window    Window
	CreatedAt time.Time
}

// =============================================================================
// READ-SIDE VIEWS
// =============================================================================

// ResourceStatus is the rendered-agnostic availability summary for one
// resource, produced by the status reporter.
type ResourceStatus struct {
	Resource ResourceID
	Class    Class

	// Busy means "now" falls inside a claim; BusyUntil is that claim's end.
	Busy      bool
	BusyUntil *time.Time

	// NextClaimStart frames "available until X" when the resource is free.
	NextClaimStart *time.Time

	// OfferStart is set when the earliest offer has not opened yet.
	OfferStart *time.Time

	// FreeGaps are the remaining bookable sub-intervals, each at least the
	// minimum claim duration, ordered and non-overlapping.
	FreeGaps []Window

	// Staff pool fields.
	OpenSlots int
	PoolSize  int
	Blackout  bool
}

// Activity is everything one user currently has on the books.
type Activity struct {
	Offers []Offer
	Claims []Claim
	Stats  UserStats
}

// WithdrawResult reports the side effects of withdrawing an offer: the
// distinct claimers whose reservations were cascaded away. The caller is
// responsible for telling them.
type WithdrawResult struct {
	RemovedOffers   int
	CascadedClaims  int
	AffectedClaimer []UserID
}

// CancelSelector targets a claim by shape instead of by opaque id, for
// callers whose transport cannot round-trip record ids. EndHour -1
// matches any end, so claims ending at midnight (hour 0) stay targetable.
type CancelSelector struct {
	Resource  ResourceID
	DayOfWeek time.Weekday
	StartHour int
	EndHour   int
}

// AnyEndHour is the CancelSelector wildcard for EndHour.
const AnyEndHour = -1

// Notifier delivers out-of-band messages to users affected by someone
// else's action (cascaded claimers, evicted guests). Implementations live
// with the transport; the engine only pushes into it.
type Notifier interface {
	Notify(user UserID, message string)
}
