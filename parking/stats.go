/*
stats.go - Utilization accounting

Hours offered, hours claimed and the resulting utilization ratio for one
user, computed from their active records. Decimal arithmetic keeps the
ratio exact; 10 claimed hours against 16 offered is 0.625, not a float
approximation.
*/
package parking

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserStats summarizes a user's footprint on the system.
type UserStats struct {
	// HoursOffered is the total span of the user's active offers.
	HoursOffered decimal.Decimal

	// HoursClaimed is the total span of the user's own active claims.
	HoursClaimed decimal.Decimal

	// HoursClaimedByOthers is the span of other users' claims against
	// this user's offers.
	HoursClaimedByOthers decimal.Decimal

	// OfferUtilization is HoursClaimedByOthers / HoursOffered, zero when
	// nothing is offered.
	OfferUtilization decimal.Decimal
}

// ComputeUserStats aggregates a user's offers, their own claims, and the
// claims other users hold against their offers.
func ComputeUserStats(offers []Offer, claims []Claim, claimsOnOffers []Claim) UserStats {
	var stats UserStats
	for _, o := range offers {
		stats.HoursOffered = stats.HoursOffered.Add(hoursOf(o.Window.Duration()))
	}
	for _, c := range claims {
		stats.HoursClaimed = stats.HoursClaimed.Add(hoursOf(c.Window.Duration()))
	}
	for _, c := range claimsOnOffers {
		stats.HoursClaimedByOthers = stats.HoursClaimedByOthers.Add(hoursOf(c.Window.Duration()))
	}
	if stats.HoursOffered.IsPositive() {
		stats.OfferUtilization = stats.HoursClaimedByOthers.Div(stats.HoursOffered)
	}
	return stats
}

func hoursOf(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Hour))
}
