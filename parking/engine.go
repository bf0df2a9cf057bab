/*
engine.go - AllocationEngine: validate-then-commit pipelines

PURPOSE:
  The orchestrator. Every (resource, window) request runs a fixed pipeline;
  any failing step short-circuits with a specific error kind from errors.go.

PIPELINES:
  OfferSpot     class check -> duration -> offer-overlap -> insert
  ClaimSpot     duration -> covering offer (resident) or rolling window
                (guest) -> claim-overlap -> insert
  ClaimStaff    duration -> blackout (hour-stepped) -> own-claim check ->
                pool capacity -> slot pick -> insert
  WithdrawOffer ownership -> cascade claims -> delete offer -> report ids
  Reclaim       ownership -> evict the claim occupying the spot right now

CONCURRENCY:
  The stores enforce no uniqueness, so check-then-insert must be exclusive
  per resource or two racing claims can both pass the overlap check against
  the pre-insert snapshot. The engine serializes every mutating operation
  through a per-resource lock; the staff pool is one lock for the whole
  pool, since capacity is a pool-wide invariant. Reads take the same lock
  shared, so no query observes a half-applied cascade.

SEE ALSO:
  - availability.go: read-side gap computation and status reporting
  - sweeper.go: periodic purge of expired rows
*/
package parking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Duration policy defaults. Claims are bounded both ways; offers only
// from below.
const (
	DefaultMinClaim = 2 * time.Hour
	DefaultMaxClaim = 7 * 24 * time.Hour
	DefaultMinOffer = 2 * time.Hour

	// DefaultRecurrenceCap bounds weekly offer materialization so store
	// growth stays bounded.
	DefaultRecurrenceCap = 12

	// GuestHorizon is the rolling implicit offer on the guest spot.
	GuestHorizon = 7 * 24 * time.Hour
)

// Engine validates and commits offers and claims against the stores.
type Engine struct {
	layout   Layout
	offers   OfferStore
	claims   ClaimStore
	blackout BlackoutCalendar
	clock    Clock
	notifier Notifier

	minClaim      time.Duration
	maxClaim      time.Duration
	minOffer      time.Duration
	recurrenceCap int

	locks resourceLocks
}

// NewEngine wires an engine with the default duration policy and the
// standing blackout calendar.
func NewEngine(layout Layout, offers OfferStore, claims ClaimStore, clock Clock) *Engine {
	return &Engine{
		layout:        layout,
		offers:        offers,
		claims:        claims,
		blackout:      DefaultBlackout(),
		clock:         clock,
		minClaim:      DefaultMinClaim,
		maxClaim:      DefaultMaxClaim,
		minOffer:      DefaultMinOffer,
		recurrenceCap: DefaultRecurrenceCap,
	}
}

// WithBlackout replaces the staff blackout calendar.
func (e *Engine) WithBlackout(c BlackoutCalendar) *Engine {
	e.blackout = c
	return e
}

// WithNotifier attaches the out-of-band notification channel.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithRecurrenceCap overrides the weekly materialization bound.
func (e *Engine) WithRecurrenceCap(n int) *Engine {
	if n > 0 {
		e.recurrenceCap = n
	}
	return e
}

// Now returns the current instant in the building's timezone.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// Layout exposes the building inventory to read-side callers.
func (e *Engine) Layout() Layout { return e.layout }

// =============================================================================
// PER-RESOURCE LOCKING
// =============================================================================

// resourceLocks hands out one RWMutex per resource id. Mutating pipelines
// take the write side; availability reads take the read side. Each
// operation touches exactly one resource (or the whole pool), so there is
// no lock ordering to get wrong.
type resourceLocks struct {
	mu    sync.Mutex
	locks map[ResourceID]*sync.RWMutex
}

func (l *resourceLocks) get(id ResourceID) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[ResourceID]*sync.RWMutex)
	}
	lk, ok := l.locks[id]
	if !ok {
		lk = &sync.RWMutex{}
		l.locks[id] = lk
	}
	return lk
}

// =============================================================================
// OFFERS
// =============================================================================

// OfferSpot lists a resident spot as available for the window. repeatWeeks
// materializes that many additional week-shifted copies (all-or-nothing);
// zero means the single window only. Returns the created offers.
func (e *Engine) OfferSpot(ctx context.Context, resource ResourceID, owner UserID, w Window, repeatWeeks int) ([]Offer, error) {
	class, ok := e.layout.ClassOf(resource)
	if !ok || class != ClassResident {
		return nil, fmt.Errorf("spot %d is not a resident spot: %w", resource, ErrInvalidResource)
	}
	if w.Duration() < e.minOffer {
		return nil, &DurationError{Got: w.Duration(), Min: e.minOffer}
	}
	if repeatWeeks < 0 || repeatWeeks > e.recurrenceCap {
		return nil, fmt.Errorf("repeat weeks %d outside 0..%d: %w", repeatWeeks, e.recurrenceCap, ErrInvalidDuration)
	}

	lk := e.locks.get(resource)
	lk.Lock()
	defer lk.Unlock()

	now := e.clock.Now()
	batch := make([]Offer, 0, repeatWeeks+1)
	for week := 0; week <= repeatWeeks; week++ {
		shifted := w.ShiftDays(7 * week)

		existing, err := e.offers.Overlapping(ctx, resource, shifted, now)
		if err != nil {
			return nil, fmt.Errorf("offer overlap query: %w", err)
		}
		if len(existing) > 0 {
			return nil, &OverlapError{Resource: resource, Requested: shifted, Existing: existing[0].Window}
		}
		for _, prior := range batch {
			if prior.Window.Overlaps(shifted) {
				return nil, &OverlapError{Resource: resource, Requested: shifted, Existing: prior.Window}
			}
		}

		batch = append(batch, Offer{
			ID:        OfferID(uuid.NewString()),
			Resource:  resource,
			Owner:     owner,
			Window:    shifted,
			CreatedAt: now,
		})
	}

	if err := e.offers.InsertBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("offer insert: %w", err)
	}
	return batch, nil
}

// WithdrawOffer removes every active offer the owner has on the spot and
// cascades away every claim referencing them. The result carries the
// distinct affected claimers so the caller can tell them; if a notifier is
// attached they are pinged here too.
func (e *Engine) WithdrawOffer(ctx context.Context, resource ResourceID, owner UserID) (WithdrawResult, error) {
	class, ok := e.layout.ClassOf(resource)
	if !ok || class != ClassResident {
		return WithdrawResult{}, fmt.Errorf("spot %d is not a resident spot: %w", resource, ErrInvalidResource)
	}

	lk := e.locks.get(resource)
	lk.Lock()
	defer lk.Unlock()

	now := e.clock.Now()
	all, err := e.offers.ByResource(ctx, resource, now)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("offer query: %w", err)
	}
	if len(all) == 0 {
		return WithdrawResult{}, fmt.Errorf("spot %d has no active offer: %w", resource, ErrNotFound)
	}

	var mine []Offer
	for _, o := range all {
		if o.Owner == owner {
			mine = append(mine, o)
		}
	}
	if len(mine) == 0 {
		return WithdrawResult{}, fmt.Errorf("spot %d offers belong to someone else: %w", resource, ErrNotOwner)
	}

	var result WithdrawResult
	seen := make(map[UserID]bool)
	for _, o := range mine {
		// Claims first, then the offer. The claim step is idempotent, so
		// a retry after a partial failure converges.
		linked, err := e.claims.ByOffer(ctx, o.ID)
		if err != nil {
			return result, fmt.Errorf("cascade query: %w", err)
		}
		removed, err := e.claims.DeleteByOffer(ctx, o.ID)
		if err != nil {
			return result, fmt.Errorf("cascade delete: %w", err)
		}
		result.CascadedClaims += removed
		for _, c := range linked {
			if !seen[c.Claimer] {
				seen[c.Claimer] = true
				result.AffectedClaimer = append(result.AffectedClaimer, c.Claimer)
			}
		}
		if err := e.offers.Delete(ctx, o.ID); err != nil {
			return result, fmt.Errorf("offer delete: %w", err)
		}
		result.RemovedOffers++
	}

	if e.notifier != nil {
		for _, u := range result.AffectedClaimer {
			e.notifier.Notify(u, fmt.Sprintf("your reservation for spot %d was cancelled: the owner withdrew the offer", resource))
		}
	}
	return result, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

// ClaimSpot reserves a resident or guest spot for the window. Resident
// claims must be fully contained by a single active offer; guest claims
// ride the rolling implicit offer instead.
func (e *Engine) ClaimSpot(ctx context.Context, resource ResourceID, claimer UserID, w Window) (Claim, error) {
	class, ok := e.layout.ClassOf(resource)
	if !ok || class == ClassStaff {
		return Claim{}, fmt.Errorf("spot %d is not claimable by number: %w", resource, ErrInvalidResource)
	}
	if d := w.Duration(); d < e.minClaim || d > e.maxClaim {
		return Claim{}, &DurationError{Got: d, Min: e.minClaim, Max: e.maxClaim}
	}

	lk := e.locks.get(resource)
	lk.Lock()
	defer lk.Unlock()

	now := e.clock.Now()
	claim := Claim{
		ID:        ClaimID(uuid.NewString()),
		Resource:  resource,
		Claimer:   claimer,
		Window:    w,
		CreatedAt: now,
	}

	switch class {
	case ClassGuest:
		if !e.guestWindow(now).Contains(w) {
			return Claim{}, &NoCoverError{Resource: resource, Requested: w, Considered: []Window{e.guestWindow(now)}}
		}
		claim.Owner = SystemOwner

	case ClassResident:
		offer, err := e.coveringOffer(ctx, resource, w, now)
		if err != nil {
			return Claim{}, err
		}
		claim.Owner = offer.Owner
		claim.OfferID = offer.ID
	}

	conflicts, err := e.claims.Overlapping(ctx, resource, w, now)
	if err != nil {
		return Claim{}, fmt.Errorf("claim overlap query: %w", err)
	}
	if len(conflicts) > 0 {
		return Claim{}, &OverlapError{Resource: resource, Requested: w, Existing: conflicts[0].Window}
	}

	if err := e.claims.Insert(ctx, claim); err != nil {
		return Claim{}, fmt.Errorf("claim insert: %w", err)
	}
	return claim, nil
}

// guestWindow is the implicit always-on offer for the guest spot: today's
// midnight through seven days out.
func (e *Engine) guestWindow(now time.Time) Window {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Window{Start: midnight, End: midnight.Add(GuestHorizon)}
}

// coveringOffer finds the single active offer that fully contains w.
// When more than one qualifies the earliest-starting (then earliest
// created) offer wins, so the tie-break is deterministic rather than
// storage-order.
func (e *Engine) coveringOffer(ctx context.Context, resource ResourceID, w Window, now time.Time) (Offer, error) {
	candidates, err := e.offers.Overlapping(ctx, resource, w, now)
	if err != nil {
		return Offer{}, fmt.Errorf("offer query: %w", err)
	}
	considered := make([]Window, 0, len(candidates))
	for _, o := range candidates {
		if o.Window.Contains(w) {
			return o, nil
		}
		considered = append(considered, o.Window)
	}
	return Offer{}, &NoCoverError{Resource: resource, Requested: w, Considered: considered}
}

// ClaimStaff reserves any free slot in the staff pool for the window.
// Slot identity is internal bookkeeping; callers only learn whether the
// pool had room.
func (e *Engine) ClaimStaff(ctx context.Context, claimer UserID, w Window) (Claim, error) {
	if d := w.Duration(); d < e.minClaim || d > e.maxClaim {
		return Claim{}, &DurationError{Got: d, Min: e.minClaim, Max: e.maxClaim}
	}
	if at, hit := e.blackout.Intersects(w); hit {
		return Claim{}, &BlackoutError{Requested: w, BlockedAt: at}
	}

	// Capacity is pool-wide, so the whole pool serializes on one lock.
	lk := e.locks.get(StaffPool)
	lk.Lock()
	defer lk.Unlock()

	now := e.clock.Now()

	// One active staff claim per user at a time.
	own, err := e.claims.ByClaimer(ctx, claimer, now)
	if err != nil {
		return Claim{}, fmt.Errorf("claim query: %w", err)
	}
	for _, c := range own {
		if c.Resource == StaffPool {
			return Claim{}, &OverlapError{Resource: StaffPool, Requested: w, Existing: c.Window}
		}
	}

	overlapping, err := e.claims.Overlapping(ctx, StaffPool, w, now)
	if err != nil {
		return Claim{}, fmt.Errorf("claim overlap query: %w", err)
	}
	if len(overlapping) >= e.layout.StaffPoolSize {
		return Claim{}, fmt.Errorf("all %d staff spots reserved for that window: %w", e.layout.StaffPoolSize, ErrPoolExhausted)
	}

	taken := make(map[int]bool, len(overlapping))
	for _, c := range overlapping {
		taken[c.Slot] = true
	}
	slot := 0
	for taken[slot] {
		slot++
	}

	claim := Claim{
		ID:        ClaimID(uuid.NewString()),
		Resource:  StaffPool,
		Claimer:   claimer,
		Owner:     SystemOwner,
		Slot:      slot,
		Window:    w,
		CreatedAt: now,
	}
	if err := e.claims.Insert(ctx, claim); err != nil {
		return Claim{}, fmt.Errorf("claim insert: %w", err)
	}
	return claim, nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelClaim removes the claim if the caller made it.
func (e *Engine) CancelClaim(ctx context.Context, id ClaimID, claimer UserID) error {
	c, ok, err := e.claims.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("claim lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	if c.Claimer != claimer {
		return fmt.Errorf("claim %s belongs to someone else: %w", id, ErrNotClaimer)
	}

	lk := e.locks.get(c.Resource)
	lk.Lock()
	defer lk.Unlock()
	if err := e.claims.Delete(ctx, id); err != nil {
		return fmt.Errorf("claim delete: %w", err)
	}
	return nil
}

// CancelBySelector targets one of the caller's claims by shape, for
// transports that cannot round-trip record ids. An EndHour of AnyEndHour
// matches any end.
func (e *Engine) CancelBySelector(ctx context.Context, sel CancelSelector, claimer UserID) error {
	now := e.clock.Now()
	own, err := e.claims.ByClaimer(ctx, claimer, now)
	if err != nil {
		return fmt.Errorf("claim query: %w", err)
	}
	for _, c := range own {
		if c.Resource != sel.Resource {
			continue
		}
		if c.Window.Start.Weekday() != sel.DayOfWeek || c.Window.Start.Hour() != sel.StartHour {
			continue
		}
		if sel.EndHour != AnyEndHour && c.Window.End.Hour() != sel.EndHour {
			continue
		}
		return e.CancelClaim(ctx, c.ID, claimer)
	}
	return fmt.Errorf("no matching claim for spot %d: %w", sel.Resource, ErrNotFound)
}

// ReleaseStaff drops the caller's active staff claim.
func (e *Engine) ReleaseStaff(ctx context.Context, claimer UserID) error {
	now := e.clock.Now()
	own, err := e.claims.ByClaimer(ctx, claimer, now)
	if err != nil {
		return fmt.Errorf("claim query: %w", err)
	}
	for _, c := range own {
		if c.Resource == StaffPool {
			lk := e.locks.get(StaffPool)
			lk.Lock()
			err := e.claims.Delete(ctx, c.ID)
			lk.Unlock()
			if err != nil {
				return fmt.Errorf("claim delete: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("no staff claim held: %w", ErrNotFound)
}

// Reclaim evicts whoever currently occupies the owner's spot, without
// touching the offer or any future claims. Returns the evicted claimer.
func (e *Engine) Reclaim(ctx context.Context, resource ResourceID, owner UserID) (UserID, error) {
	class, ok := e.layout.ClassOf(resource)
	if !ok || class != ClassResident {
		return "", fmt.Errorf("spot %d is not a resident spot: %w", resource, ErrInvalidResource)
	}

	lk := e.locks.get(resource)
	lk.Lock()
	defer lk.Unlock()

	now := e.clock.Now()
	active, err := e.claims.ByResource(ctx, resource, now)
	if err != nil {
		return "", fmt.Errorf("claim query: %w", err)
	}
	for _, c := range active {
		if !c.Window.ContainsInstant(now) {
			continue
		}
		if c.Owner != owner {
			return "", fmt.Errorf("spot %d is not yours to reclaim: %w", resource, ErrNotOwner)
		}
		if err := e.claims.Delete(ctx, c.ID); err != nil {
			return "", fmt.Errorf("claim delete: %w", err)
		}
		if e.notifier != nil {
			e.notifier.Notify(c.Claimer, fmt.Sprintf("spot %d was reclaimed by its owner, please move your vehicle", resource))
		}
		return c.Claimer, nil
	}
	return "", fmt.Errorf("spot %d is not currently occupied: %w", resource, ErrNotFound)
}

// =============================================================================
// USER ACTIVITY
// =============================================================================

// UserActivity returns everything the user currently has on the books,
// plus their utilization stats.
func (e *Engine) UserActivity(ctx context.Context, user UserID) (Activity, error) {
	now := e.clock.Now()
	offers, err := e.offers.ByOwner(ctx, user, now)
	if err != nil {
		return Activity{}, fmt.Errorf("offer query: %w", err)
	}
	claims, err := e.claims.ByClaimer(ctx, user, now)
	if err != nil {
		return Activity{}, fmt.Errorf("claim query: %w", err)
	}

	var claimedOnOffers []Claim
	for _, o := range offers {
		linked, err := e.claims.ByOffer(ctx, o.ID)
		if err != nil {
			return Activity{}, fmt.Errorf("claim query: %w", err)
		}
		claimedOnOffers = append(claimedOnOffers, linked...)
	}

	return Activity{
		Offers: offers,
		Claims: claims,
		Stats:  ComputeUserStats(offers, claims, claimedOnOffers),
	}, nil
}
