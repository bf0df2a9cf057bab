/*
availability.go - Free-gap computation and status reporting

PURPOSE:
  Pure read side. Given a resource's offered window(s), subtract its
  claims to produce the ordered list of remaining bookable gaps, and
  summarize busy/free state for rendering.

GAP ALGORITHM:
  Sort claims by start, sweep a pointer from the window start, emit a gap
  whenever the distance to the next claim's start is at least the minimum
  claim duration, advance the pointer to max(pointer, claim.End), and emit
  a trailing gap if the remainder is long enough. Gaps shorter than the
  minimum claim duration are not bookable and never reported.

CONSISTENCY:
  Each resource's status row is assembled inside one hold of that
  resource's read lock, from a single claim snapshot. A row can therefore
  never mix pre- and post-mutation state, and a concurrent cascade delete
  is observed either entirely or not at all.
*/
package parking

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SubtractClaims returns the free sub-intervals of window net of the given
// claims, keeping only gaps of at least minGap. Claims outside the window
// clip to it; claims covering it entirely leave nothing.
func SubtractClaims(window Window, claims []Claim, minGap time.Duration) []Window {
	sorted := make([]Claim, len(claims))
	copy(sorted, claims)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Window.Start.Before(sorted[j].Window.Start) })

	var gaps []Window
	cursor := window.Start
	for _, c := range sorted {
		if !c.Window.Overlaps(window) {
			continue
		}
		if c.Window.Start.Sub(cursor) >= minGap {
			gaps = append(gaps, Window{Start: cursor, End: c.Window.Start})
		}
		if c.Window.End.After(cursor) {
			cursor = c.Window.End
		}
	}
	if window.End.Sub(cursor) >= minGap {
		gaps = append(gaps, Window{Start: cursor, End: window.End})
	}
	return gaps
}

// Availability computes the bookable gaps for one resource out to
// horizonEnd. Resident gaps come from the resource's active offers; the
// guest spot uses its rolling implicit window; the staff pool has no
// per-slot gaps to report and returns nil.
func (e *Engine) Availability(ctx context.Context, resource ResourceID, horizonEnd time.Time) ([]Window, error) {
	class, ok := e.layout.ClassOf(resource)
	if !ok {
		return nil, fmt.Errorf("spot %d: %w", resource, ErrInvalidResource)
	}

	lk := e.locks.get(resource)
	lk.RLock()
	defer lk.RUnlock()

	now := e.clock.Now()
	claims, err := e.claims.ByResource(ctx, resource, now)
	if err != nil {
		return nil, fmt.Errorf("claim query: %w", err)
	}
	return e.gapsLocked(ctx, resource, class, claims, now, horizonEnd)
}

// gapsLocked computes the bookable gaps against the given claim snapshot.
// The caller must hold the resource's lock: offers are read here, and the
// result is only coherent with claims if both reads sit inside the same
// critical section.
func (e *Engine) gapsLocked(ctx context.Context, resource ResourceID, class Class, claims []Claim, now, horizonEnd time.Time) ([]Window, error) {
	var windows []Window
	switch class {
	case ClassGuest:
		windows = []Window{e.guestWindow(now)}
	case ClassResident:
		offers, err := e.offers.ByResource(ctx, resource, now)
		if err != nil {
			return nil, fmt.Errorf("offer query: %w", err)
		}
		for _, o := range offers {
			windows = append(windows, o.Window)
		}
	case ClassStaff:
		return nil, nil
	}

	var gaps []Window
	for _, w := range windows {
		if w.Start.Before(now) {
			// Elapsed portions of a window are not bookable.
			w.Start = now.Truncate(time.Hour)
		}
		if !horizonEnd.IsZero() && w.End.After(horizonEnd) {
			w.End = horizonEnd
		}
		if !w.End.After(w.Start) {
			continue
		}
		gaps = append(gaps, SubtractClaims(w, claims, e.minClaim)...)
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Start.Before(gaps[j].Start) })
	return gaps, nil
}

// Status summarizes every resource with at least one active offer, plus
// the always-present guest spot and staff pool, out to horizonDays.
func (e *Engine) Status(ctx context.Context, horizonDays int) ([]ResourceStatus, error) {
	now := e.clock.Now()
	horizonEnd := now.AddDate(0, 0, horizonDays)
	if horizonDays <= 0 {
		horizonEnd = time.Time{}
	}

	offered, err := e.offers.Resources(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("offer query: %w", err)
	}
	sort.Slice(offered, func(i, j int) bool { return offered[i] < offered[j] })

	var out []ResourceStatus
	for _, resource := range offered {
		st, err := e.residentStatus(ctx, resource, now, horizonEnd)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}

	guest, err := e.spotStatus(ctx, e.layout.GuestSpot, ClassGuest, now, horizonEnd)
	if err != nil {
		return nil, err
	}
	out = append(out, guest)

	staff, err := e.staffStatus(ctx, now)
	if err != nil {
		return nil, err
	}
	out = append(out, staff)
	return out, nil
}

func (e *Engine) residentStatus(ctx context.Context, resource ResourceID, now, horizonEnd time.Time) (ResourceStatus, error) {
	lk := e.locks.get(resource)
	lk.RLock()
	defer lk.RUnlock()

	st, err := e.spotStatusLocked(ctx, resource, ClassResident, now, horizonEnd)
	if err != nil {
		return ResourceStatus{}, err
	}

	// An offer that has not opened yet reads "available starting X"
	// rather than "free now".
	offers, err := e.offers.ByResource(ctx, resource, now)
	if err != nil {
		return ResourceStatus{}, fmt.Errorf("offer query: %w", err)
	}
	if !st.Busy && len(offers) > 0 && offers[0].Window.Start.After(now) {
		start := offers[0].Window.Start
		st.OfferStart = &start
	}
	return st, nil
}

func (e *Engine) spotStatus(ctx context.Context, resource ResourceID, class Class, now, horizonEnd time.Time) (ResourceStatus, error) {
	lk := e.locks.get(resource)
	lk.RLock()
	defer lk.RUnlock()
	return e.spotStatusLocked(ctx, resource, class, now, horizonEnd)
}

// spotStatusLocked builds the busy/free framing shared by resident and
// guest spots: whether now sits inside a claim, and if free, when the next
// claim begins. The whole row derives from one claim snapshot taken under
// the caller's lock, so Busy and FreeGaps can never disagree about now.
func (e *Engine) spotStatusLocked(ctx context.Context, resource ResourceID, class Class, now, horizonEnd time.Time) (ResourceStatus, error) {
	st := ResourceStatus{Resource: resource, Class: class}

	claims, err := e.claims.ByResource(ctx, resource, now)
	if err != nil {
		return ResourceStatus{}, fmt.Errorf("claim query: %w", err)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].Window.Start.Before(claims[j].Window.Start) })
	for _, c := range claims {
		if c.Window.ContainsInstant(now) {
			st.Busy = true
			end := c.Window.End
			st.BusyUntil = &end
			break
		}
		if c.Window.Start.After(now) {
			start := c.Window.Start
			st.NextClaimStart = &start
			break
		}
	}

	gaps, err := e.gapsLocked(ctx, resource, class, claims, now, horizonEnd)
	if err != nil {
		return ResourceStatus{}, err
	}
	st.FreeGaps = gaps
	return st, nil
}

func (e *Engine) staffStatus(ctx context.Context, now time.Time) (ResourceStatus, error) {
	st := ResourceStatus{
		Resource: StaffPool,
		Class:    ClassStaff,
		PoolSize: e.layout.StaffPoolSize,
		Blackout: e.blackout.Covers(now),
	}

	lk := e.locks.get(StaffPool)
	lk.RLock()
	defer lk.RUnlock()

	claims, err := e.claims.ByResource(ctx, StaffPool, now)
	if err != nil {
		return ResourceStatus{}, fmt.Errorf("claim query: %w", err)
	}
	occupied := 0
	for _, c := range claims {
		if c.Window.ContainsInstant(now) {
			occupied++
		}
	}
	st.OpenSlots = e.layout.StaffPoolSize - occupied
	st.Busy = st.OpenSlots <= 0 || st.Blackout
	return st, nil
}
