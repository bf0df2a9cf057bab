package parking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnfabrycky/felipe/parking"
	"github.com/johnfabrycky/felipe/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fixedClock is a settable clock for deterministic tests.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func testLayout() parking.Layout {
	return parking.NewLayout([]parking.ResourceID{1, 2, 3, 4, 5}, 46, 2)
}

// newTestEngine builds an engine over fresh memory stores with the clock
// fixed at now.
func newTestEngine(now time.Time) (*parking.Engine, *fixedClock, *memory.OfferStore, *memory.ClaimStore) {
	clock := &fixedClock{t: now}
	offers := memory.NewOfferStore()
	claims := memory.NewClaimStore()
	return parking.NewEngine(testLayout(), offers, claims, clock), clock, offers, claims
}

// =============================================================================
// OFFERS
// =============================================================================

func TestOfferSpot_Success(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())

	offers, err := engine.OfferSpot(context.Background(), 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)

	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, parking.ResourceID(3), offers[0].Resource)
	assert.Equal(t, parking.UserID("alice"), offers[0].Owner)
	assert.NotEmpty(t, offers[0].ID)
}

func TestOfferSpot_NonResidentSpot_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 46, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	assert.ErrorIs(t, err, parking.ErrInvalidResource, "guest spot cannot be offered")

	_, err = engine.OfferSpot(ctx, 99, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	assert.ErrorIs(t, err, parking.ErrInvalidResource, "unknown spot")
}

func TestOfferSpot_TooShort_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())

	_, err := engine.OfferSpot(context.Background(), 3, "alice", win(time.Monday, 8, time.Monday, 9), 0)

	assert.ErrorIs(t, err, parking.ErrInvalidDuration)
}

func TestOfferSpot_OverlappingExistingOffer_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Wednesday, 18), 0)
	require.NoError(t, err)

	_, err = engine.OfferSpot(ctx, 3, "alice", win(time.Tuesday, 8, time.Thursday, 18), 0)
	assert.ErrorIs(t, err, parking.ErrOverlap)

	var oe *parking.OverlapError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, parking.ResourceID(3), oe.Resource)
}

func TestOfferSpot_TouchingOffers_Allowed(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Wednesday, 8), 0)
	require.NoError(t, err)

	_, err = engine.OfferSpot(ctx, 3, "alice", win(time.Wednesday, 8, time.Friday, 8), 0)
	assert.NoError(t, err, "back-to-back offers do not overlap")
}

func TestOfferSpot_WeeklyRecurrence_MaterializesShiftedRows(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())

	offers, err := engine.OfferSpot(context.Background(), 3, "alice", win(time.Monday, 8, time.Tuesday, 8), 2)

	require.NoError(t, err)
	require.Len(t, offers, 3)
	for i := 1; i < len(offers); i++ {
		assert.Equal(t, offers[0].Window.ShiftDays(7*i), offers[i].Window)
	}
}

func TestOfferSpot_RecurrenceKeepsCivilHourAcrossDST(t *testing.T) {
	// GIVEN: a Chicago clock just before the March spring-forward
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	base := time.Date(2026, time.March, 2, 0, 0, 0, 0, loc) // a Monday
	clock := &fixedClock{t: base}
	engine := parking.NewEngine(testLayout(), memory.NewOfferStore(), memory.NewClaimStore(), clock)

	// WHEN: a Monday 08:00-18:00 offer repeats into the week after March 8
	w := parking.Window{Start: base.Add(8 * time.Hour), End: base.Add(18 * time.Hour)}
	offers, err := engine.OfferSpot(context.Background(), 3, "alice", w, 1)

	// THEN: the materialized week still starts at 08:00 local
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, 8, offers[1].Window.Start.Hour())
	assert.Equal(t, 18, offers[1].Window.End.Hour())
}

func TestOfferSpot_RecurrenceOverCap_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())

	_, err := engine.OfferSpot(context.Background(), 3, "alice", win(time.Monday, 8, time.Tuesday, 8), parking.DefaultRecurrenceCap+1)

	assert.ErrorIs(t, err, parking.ErrInvalidDuration)
}

// =============================================================================
// RESIDENT AND GUEST CLAIMS
// =============================================================================

func TestClaimSpot_WithinOffer_Succeeds(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	offers, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)

	claim, err := engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))

	require.NoError(t, err)
	assert.Equal(t, parking.UserID("alice"), claim.Owner, "owner inherited from the offer")
	assert.Equal(t, offers[0].ID, claim.OfferID)
}

func TestClaimSpot_NoOffer_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())

	_, err := engine.ClaimSpot(context.Background(), 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))

	assert.ErrorIs(t, err, parking.ErrOutsideOfferWindow)
}

func TestClaimSpot_StraddlingAdjacentOffers_Rejected(t *testing.T) {
	// GIVEN: two touching offers whose union covers the claim window
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Wednesday, 8), 0)
	require.NoError(t, err)
	_, err = engine.OfferSpot(ctx, 3, "alice", win(time.Wednesday, 8, time.Friday, 8), 0)
	require.NoError(t, err)

	// WHEN: claiming across the seam
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Thursday, 10))

	// THEN: rejected; containment is per-offer, union coverage is not enough
	assert.ErrorIs(t, err, parking.ErrOutsideOfferWindow)
}

func TestClaimSpot_OverlappingClaim_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))
	require.NoError(t, err)

	_, err = engine.ClaimSpot(ctx, 3, "carol", win(time.Tuesday, 12, time.Tuesday, 16))
	assert.ErrorIs(t, err, parking.ErrOverlap)

	_, err = engine.ClaimSpot(ctx, 3, "carol", win(time.Tuesday, 14, time.Tuesday, 18))
	assert.NoError(t, err, "touching claims do not overlap")
}

func TestClaimSpot_DurationBounds(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)

	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 11))
	assert.ErrorIs(t, err, parking.ErrInvalidDuration, "one hour is below the minimum")

	long := parking.Window{Start: at(time.Monday, 8), End: at(time.Monday, 8).AddDate(0, 0, 8)}
	_, err = engine.ClaimSpot(ctx, 3, "bob", long)
	assert.ErrorIs(t, err, parking.ErrInvalidDuration, "over seven days")
}

func TestClaimSpot_Guest_NoOfferNeeded(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())

	claim, err := engine.ClaimSpot(context.Background(), 46, "bob", win(time.Tuesday, 10, time.Tuesday, 14))

	require.NoError(t, err)
	assert.Equal(t, parking.SystemOwner, claim.Owner)
	assert.Empty(t, claim.OfferID)
}

func TestClaimSpot_Guest_BeyondRollingHorizon_Rejected(t *testing.T) {
	// GIVEN: now is Monday 00:00; the implicit guest window runs 7 days
	engine, _, _, _ := newTestEngine(mondayBase())

	// WHEN: claiming a window that ends 8 days out
	w := parking.Window{Start: mondayBase().AddDate(0, 0, 7), End: mondayBase().AddDate(0, 0, 8)}
	_, err := engine.ClaimSpot(context.Background(), 46, "bob", w)

	// THEN: rejected as outside the implicit offer
	assert.ErrorIs(t, err, parking.ErrOutsideOfferWindow)
}

// =============================================================================
// STAFF CLAIMS
// =============================================================================

func TestClaimStaff_DuringWeekdayBlackout_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())

	_, err := engine.ClaimStaff(context.Background(), "sam", win(time.Tuesday, 10, time.Tuesday, 14))

	assert.ErrorIs(t, err, parking.ErrBlackout)
	var be *parking.BlackoutError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, at(time.Tuesday, 10), be.BlockedAt)
}

func TestClaimStaff_EveningWindow_Succeeds(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())

	claim, err := engine.ClaimStaff(context.Background(), "sam", win(time.Tuesday, 18, time.Tuesday, 20))

	require.NoError(t, err)
	assert.Equal(t, parking.StaffPool, claim.Resource)
}

func TestClaimStaff_PoolCapacity(t *testing.T) {
	// GIVEN: pool size 2, two overlapping evening claims committed
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	first, err := engine.ClaimStaff(ctx, "sam", win(time.Tuesday, 18, time.Tuesday, 22))
	require.NoError(t, err)
	second, err := engine.ClaimStaff(ctx, "pat", win(time.Tuesday, 18, time.Tuesday, 22))
	require.NoError(t, err)
	assert.NotEqual(t, first.Slot, second.Slot, "concurrent claims land on distinct slots")

	// WHEN: a third user wants an overlapping window
	_, err = engine.ClaimStaff(ctx, "kim", win(time.Tuesday, 19, time.Tuesday, 21))

	// THEN: the pool is full
	assert.ErrorIs(t, err, parking.ErrPoolExhausted)

	// AND: a disjoint window still works
	_, err = engine.ClaimStaff(ctx, "kim", win(time.Wednesday, 18, time.Wednesday, 20))
	assert.NoError(t, err)
}

func TestClaimStaff_SecondClaimBySameUser_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.ClaimStaff(ctx, "sam", win(time.Tuesday, 18, time.Tuesday, 20))
	require.NoError(t, err)

	_, err = engine.ClaimStaff(ctx, "sam", win(time.Wednesday, 18, time.Wednesday, 20))
	assert.ErrorIs(t, err, parking.ErrOverlap, "one active staff claim per user")
}

func TestReleaseStaff(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.ClaimStaff(ctx, "sam", win(time.Tuesday, 18, time.Tuesday, 20))
	require.NoError(t, err)

	require.NoError(t, engine.ReleaseStaff(ctx, "sam"))
	assert.ErrorIs(t, engine.ReleaseStaff(ctx, "sam"), parking.ErrNotFound)
}

// =============================================================================
// WITHDRAWAL AND CANCELLATION
// =============================================================================

func TestWithdrawOffer_CascadesAndReportsClaimers(t *testing.T) {
	// GIVEN: an offer with two live claims by different users
	engine, _, _, claims := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "carol", win(time.Wednesday, 10, time.Wednesday, 14))
	require.NoError(t, err)

	// WHEN: the owner withdraws
	result, err := engine.WithdrawOffer(ctx, 3, "alice")

	// THEN: both claimers are reported and the claims are gone
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedOffers)
	assert.Equal(t, 2, result.CascadedClaims)
	assert.ElementsMatch(t, []parking.UserID{"bob", "carol"}, result.AffectedClaimer)

	remaining, err := claims.ByResource(ctx, 3, mondayBase())
	require.NoError(t, err)
	assert.Empty(t, remaining)

	statuses, err := engine.Status(ctx, 7)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.NotEqual(t, parking.ResourceID(3), s.Resource, "withdrawn spot no longer reported")
	}
}

func TestWithdrawOffer_WrongOwner_Rejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)

	_, err = engine.WithdrawOffer(ctx, 3, "mallory")
	assert.ErrorIs(t, err, parking.ErrNotOwner)

	_, err = engine.WithdrawOffer(ctx, 4, "alice")
	assert.ErrorIs(t, err, parking.ErrNotFound, "no offers on the spot at all")
}

func TestCancelClaim(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)
	claim, err := engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))
	require.NoError(t, err)

	assert.ErrorIs(t, engine.CancelClaim(ctx, claim.ID, "carol"), parking.ErrNotClaimer)
	assert.ErrorIs(t, engine.CancelClaim(ctx, "no-such-id", "bob"), parking.ErrNotFound)
	assert.NoError(t, engine.CancelClaim(ctx, claim.ID, "bob"))

	// The window is free again.
	_, err = engine.ClaimSpot(ctx, 3, "carol", win(time.Tuesday, 10, time.Tuesday, 14))
	assert.NoError(t, err)
}

func TestCancelBySelector(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))
	require.NoError(t, err)

	sel := parking.CancelSelector{Resource: 3, DayOfWeek: time.Tuesday, StartHour: 10, EndHour: 14}
	assert.NoError(t, engine.CancelBySelector(ctx, sel, "bob"))
	assert.ErrorIs(t, engine.CancelBySelector(ctx, sel, "bob"), parking.ErrNotFound)
}

func TestCancelBySelector_MidnightEndHour(t *testing.T) {
	// GIVEN: a claim ending exactly at midnight
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 20, time.Wednesday, 0))
	require.NoError(t, err)

	// WHEN: targeted by end hour 0
	sel := parking.CancelSelector{Resource: 3, DayOfWeek: time.Tuesday, StartHour: 20, EndHour: 0}

	// THEN: hour 0 means midnight, not "any end"
	assert.NoError(t, engine.CancelBySelector(ctx, sel, "bob"))
}

func TestCancelBySelector_AnyEndHourWildcard(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))
	require.NoError(t, err)

	sel := parking.CancelSelector{Resource: 3, DayOfWeek: time.Tuesday, StartHour: 10, EndHour: parking.AnyEndHour}
	assert.NoError(t, engine.CancelBySelector(ctx, sel, "bob"))
}

func TestReclaim_EvictsCurrentOccupant(t *testing.T) {
	// GIVEN: bob occupies alice's spot right now
	engine, clock, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))
	require.NoError(t, err)
	clock.Set(at(time.Tuesday, 11))

	// WHEN: alice reclaims
	evicted, err := engine.Reclaim(ctx, 3, "alice")

	// THEN: bob is out; the offer itself survives
	require.NoError(t, err)
	assert.Equal(t, parking.UserID("bob"), evicted)

	_, err = engine.Reclaim(ctx, 3, "alice")
	assert.ErrorIs(t, err, parking.ErrNotFound, "nobody left to evict")

	_, err = engine.ClaimSpot(ctx, 3, "carol", win(time.Wednesday, 10, time.Wednesday, 14))
	assert.NoError(t, err, "offer still claimable after reclaim")
}

func TestReclaim_NotTheOwner_Rejected(t *testing.T) {
	engine, clock, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))
	require.NoError(t, err)
	clock.Set(at(time.Tuesday, 11))

	_, err = engine.Reclaim(ctx, 3, "mallory")
	assert.ErrorIs(t, err, parking.ErrNotOwner)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestClaimSpot_ConcurrentOverlapping_AtMostOneWins(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Friday, 18), 0)
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ClaimSpot(ctx, 3, "bob", win(time.Tuesday, 10, time.Tuesday, 14))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, parking.ErrOverlap)
		}
	}
	assert.Equal(t, 1, wins, "exactly one racing claim commits")
}

func TestClaimStaff_ConcurrentOverlapping_PoolSizeWins(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	users := []parking.UserID{"sam", "pat", "kim"}
	var wg sync.WaitGroup
	results := make(chan error, len(users))
	for _, u := range users {
		wg.Add(1)
		go func(u parking.UserID) {
			defer wg.Done()
			_, err := engine.ClaimStaff(ctx, u, win(time.Tuesday, 18, time.Tuesday, 22))
			results <- err
		}(u)
	}
	wg.Wait()
	close(results)

	wins, exhausted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, parking.ErrPoolExhausted)
			exhausted++
		}
	}
	assert.Equal(t, 2, wins)
	assert.Equal(t, 1, exhausted)
}

// =============================================================================
// USER ACTIVITY
// =============================================================================

func TestUserActivity(t *testing.T) {
	engine, _, _, _ := newTestEngine(mondayBase())
	ctx := context.Background()

	_, err := engine.OfferSpot(ctx, 3, "alice", win(time.Monday, 8, time.Tuesday, 0), 0) // 16h
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 3, "bob", win(time.Monday, 10, time.Monday, 20)) // 10h on alice's offer
	require.NoError(t, err)
	_, err = engine.ClaimSpot(ctx, 46, "alice", win(time.Wednesday, 10, time.Wednesday, 14)) // alice's own 4h guest claim
	require.NoError(t, err)

	activity, err := engine.UserActivity(ctx, "alice")

	require.NoError(t, err)
	require.Len(t, activity.Offers, 1)
	require.Len(t, activity.Claims, 1)
	assert.Equal(t, "16", activity.Stats.HoursOffered.String())
	assert.Equal(t, "4", activity.Stats.HoursClaimed.String())
	assert.Equal(t, "10", activity.Stats.HoursClaimedByOthers.String())
	assert.Equal(t, "0.625", activity.Stats.OfferUtilization.String())
}
