/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the command surface. These decouple the engine's
  domain model from the wire contract; handlers validate, DTOs carry.

NAMING CONVENTION:
  - *Request: request body types from clients
  - *DTO: response types returned to clients

WINDOW SELECTION:
  Clients speak the building's dialect: a day name and an hour, resolved
  week-relative against "now" exactly like the chat commands
  ("monday 9" means the next Monday 09:00 local). Absolute timestamps
  never cross the wire.
*/
package api

import (
	"time"

	"github.com/johnfabrycky/felipe/parking"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// WindowRequest names a window by weekday and hour, week-relative.
type WindowRequest struct {
	StartDay  string `json:"start_day"`
	StartHour int    `json:"start_hour"`
	EndDay    string `json:"end_day"`
	EndHour   int    `json:"end_hour"`
}

// Window resolves the request against now.
func (wr WindowRequest) Window(now time.Time) (parking.Window, error) {
	startDay, err := parking.ParseWeekday(wr.StartDay)
	if err != nil {
		return parking.Window{}, err
	}
	endDay, err := parking.ParseWeekday(wr.EndDay)
	if err != nil {
		return parking.Window{}, err
	}
	return parking.MakeRange(startDay, wr.StartHour, endDay, wr.EndHour, now)
}

// OfferRequest lists a spot as available.
type OfferRequest struct {
	Spot        int    `json:"spot"`
	Owner       string `json:"owner"`
	RepeatWeeks int    `json:"repeat_weeks"`
	WindowRequest
}

// ClaimRequest reserves a resident or guest spot.
type ClaimRequest struct {
	Spot    int    `json:"spot"`
	Claimer string `json:"claimer"`
	WindowRequest
}

// StaffClaimRequest reserves any free staff slot.
type StaffClaimRequest struct {
	Claimer string `json:"claimer"`
	WindowRequest
}

// WithdrawRequest withdraws the caller's offers on a spot.
type WithdrawRequest struct {
	Spot  int    `json:"spot"`
	Owner string `json:"owner"`
}

// ReclaimRequest evicts the current occupant of the caller's spot.
type ReclaimRequest struct {
	Spot  int    `json:"spot"`
	Owner string `json:"owner"`
}

// SelectorCancelRequest cancels a claim by shape instead of id. An
// omitted end_hour matches any end; hour 0 targets midnight.
type SelectorCancelRequest struct {
	Spot      int    `json:"spot"`
	Claimer   string `json:"claimer"`
	Day       string `json:"day"`
	StartHour int    `json:"start_hour"`
	EndHour   *int   `json:"end_hour,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// WindowDTO renders a window with both absolute instants and the
// week-relative framing clients display.
type WindowDTO struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	StartDay  string    `json:"start_day"`
	StartHour int       `json:"start_hour"`
	EndDay    string    `json:"end_day"`
	EndHour   int       `json:"end_hour"`
}

func toWindowDTO(w parking.Window) WindowDTO {
	return WindowDTO{
		Start:     w.Start,
		End:       w.End,
		StartDay:  w.Start.Weekday().String(),
		StartHour: w.Start.Hour(),
		EndDay:    w.End.Weekday().String(),
		EndHour:   w.End.Hour(),
	}
}

// OfferDTO represents an offer in responses.
type OfferDTO struct {
	ID     string    `json:"id"`
	Spot   int       `json:"spot"`
	Owner  string    `json:"owner"`
	Window WindowDTO `json:"window"`
}

func toOfferDTO(o parking.Offer) OfferDTO {
	return OfferDTO{
		ID:     string(o.ID),
		Spot:   int(o.Resource),
		Owner:  string(o.Owner),
		Window: toWindowDTO(o.Window),
	}
}

// ClaimDTO represents a claim in responses. The staff pool renders as
// spot -1; slot identity stays internal.
type ClaimDTO struct {
	ID      string    `json:"id"`
	Spot    int       `json:"spot"`
	Claimer string    `json:"claimer"`
	Owner   string    `json:"owner,omitempty"`
	OfferID string    `json:"offer_id,omitempty"`
	Window  WindowDTO `json:"window"`
}

func toClaimDTO(c parking.Claim) ClaimDTO {
	return ClaimDTO{
		ID:      string(c.ID),
		Spot:    int(c.Resource),
		Claimer: string(c.Claimer),
		Owner:   string(c.Owner),
		OfferID: string(c.OfferID),
		Window:  toWindowDTO(c.Window),
	}
}

// StatusDTO is one resource's availability summary.
type StatusDTO struct {
	Spot           int         `json:"spot"`
	Class          string      `json:"class"`
	Busy           bool        `json:"busy"`
	BusyUntil      *time.Time  `json:"busy_until,omitempty"`
	NextClaimStart *time.Time  `json:"next_claim_start,omitempty"`
	OfferStart     *time.Time  `json:"offer_start,omitempty"`
	FreeGaps       []WindowDTO `json:"free_gaps"`
	OpenSlots      int         `json:"open_slots,omitempty"`
	PoolSize       int         `json:"pool_size,omitempty"`
	Blackout       bool        `json:"blackout,omitempty"`
}

func toStatusDTO(s parking.ResourceStatus) StatusDTO {
	gaps := make([]WindowDTO, len(s.FreeGaps))
	for i, g := range s.FreeGaps {
		gaps[i] = toWindowDTO(g)
	}
	return StatusDTO{
		Spot:           int(s.Resource),
		Class:          string(s.Class),
		Busy:           s.Busy,
		BusyUntil:      s.BusyUntil,
		NextClaimStart: s.NextClaimStart,
		OfferStart:     s.OfferStart,
		FreeGaps:       gaps,
		OpenSlots:      s.OpenSlots,
		PoolSize:       s.PoolSize,
		Blackout:       s.Blackout,
	}
}

// ActivityDTO is one user's offers, claims and utilization.
type ActivityDTO struct {
	Offers           []OfferDTO `json:"offers"`
	Claims           []ClaimDTO `json:"claims"`
	HoursOffered     string     `json:"hours_offered"`
	HoursClaimed     string     `json:"hours_claimed"`
	OfferUtilization string     `json:"offer_utilization"`
}

func toActivityDTO(a parking.Activity) ActivityDTO {
	offers := make([]OfferDTO, len(a.Offers))
	for i, o := range a.Offers {
		offers[i] = toOfferDTO(o)
	}
	claims := make([]ClaimDTO, len(a.Claims))
	for i, c := range a.Claims {
		claims[i] = toClaimDTO(c)
	}
	return ActivityDTO{
		Offers:           offers,
		Claims:           claims,
		HoursOffered:     a.Stats.HoursOffered.String(),
		HoursClaimed:     a.Stats.HoursClaimed.String(),
		OfferUtilization: a.Stats.OfferUtilization.StringFixed(3),
	}
}

// WithdrawDTO reports a withdrawal's side effects.
type WithdrawDTO struct {
	RemovedOffers    int      `json:"removed_offers"`
	CascadedClaims   int      `json:"cascaded_claims"`
	AffectedClaimers []string `json:"affected_claimers"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}
