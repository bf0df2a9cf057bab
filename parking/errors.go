/*
errors.go - Centralized error kinds for the allocation engine

PURPOSE:
  Every rejected operation returns a distinguishable kind so the transport
  layer can render a specific message. Nothing is silently swallowed.

ERROR CATEGORIES:
  1. Request errors  - the actor must change their request (non-retryable)
  2. Authority errors - the actor does not own the record they targeted
  3. Lookup errors   - no matching record

USAGE:
  Sentinels compose with errors.Is; structured wrappers carry context and
  unwrap to their sentinel:

    if errors.Is(err, parking.ErrOverlap) { ... }

    var oe *parking.OverlapError
    if errors.As(err, &oe) { render(oe.Existing) }
*/
package parking

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidResource is returned when a resource id is unknown or has
	// the wrong class for the requested action.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrInvalidDuration is returned when a window violates the duration
	// policy (claims 2h..7d, offers at least 2h) or is malformed.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrOutsideOfferWindow is returned when no single active offer fully
	// contains the requested claim window.
	ErrOutsideOfferWindow = errors.New("outside offer window")

	// ErrOverlap is returned when the requested window conflicts with an
	// existing claim (or, for offers, an existing offer).
	ErrOverlap = errors.New("window overlaps existing reservation")

	// ErrPoolExhausted is returned when the staff pool has no free capacity
	// for the requested window.
	ErrPoolExhausted = errors.New("staff pool exhausted")

	// ErrBlackout is returned when a staff claim intersects the blackout
	// calendar.
	ErrBlackout = errors.New("staff blackout in effect")

	// ErrNotOwner is returned when an actor tries to withdraw or reclaim a
	// spot they do not own.
	ErrNotOwner = errors.New("not the owner")

	// ErrNotClaimer is returned when an actor tries to cancel a claim they
	// did not make.
	ErrNotClaimer = errors.New("not the claimer")

	// ErrNotFound is returned when there is no matching record to act on.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OverlapError reports which existing reservation blocked the request.
type OverlapError struct {
	Resource  ResourceID
	Requested Window
	Existing  Window
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("resource %d: requested %s overlaps existing %s", e.Resource, e.Requested, e.Existing)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// DurationError reports how the window violated the duration policy.
type DurationError struct {
	Got time.Duration
	Min time.Duration
	Max time.Duration // zero means unbounded
}

func (e *DurationError) Error() string {
	if e.Max == 0 {
		return fmt.Sprintf("duration %s below minimum %s", e.Got, e.Min)
	}
	return fmt.Sprintf("duration %s outside [%s, %s]", e.Got, e.Min, e.Max)
}

func (e *DurationError) Unwrap() error { return ErrInvalidDuration }

// NoCoverError reports a claim window no active offer fully contains,
// with the offers that were considered.
type NoCoverError struct {
	Resource   ResourceID
	Requested  Window
	Considered []Window
}

func (e *NoCoverError) Error() string {
	return fmt.Sprintf("resource %d: no active offer covers %s (%d offers considered)",
		e.Resource, e.Requested, len(e.Considered))
}

func (e *NoCoverError) Unwrap() error { return ErrOutsideOfferWindow }

// BlackoutError reports the first blocked hour inside the requested window.
type BlackoutError struct {
	Requested Window
	BlockedAt time.Time
}

func (e *BlackoutError) Error() string {
	return fmt.Sprintf("staff claim %s hits blackout at %s", e.Requested, e.BlockedAt.Format("Mon 15:04"))
}

func (e *BlackoutError) Unwrap() error { return ErrBlackout }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is a validation failure the actor
// can fix by changing their request. These are never retryable as-is.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidResource) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrOutsideOfferWindow) ||
		errors.Is(err, ErrOverlap) ||
		errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrBlackout)
}

// IsAuthError reports whether the actor lacked authority over the record.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotOwner) || errors.Is(err, ErrNotClaimer)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
