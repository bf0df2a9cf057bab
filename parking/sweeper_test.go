package parking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnfabrycky/felipe/parking"
	"github.com/johnfabrycky/felipe/store/memory"
)

func TestSweeper_RunOnce_PurgesExpiredRows(t *testing.T) {
	// GIVEN: an offer and its claim, both ending within the hour
	clock := &fixedClock{t: mondayBase()}
	offers := memory.NewOfferStore()
	claims := memory.NewClaimStore()
	ctx := context.Background()

	offer := parking.Offer{
		ID:       "offer-1",
		Resource: 3,
		Owner:    "alice",
		Window:   win(time.Monday, 0, time.Monday, 2),
	}
	require.NoError(t, offers.Insert(ctx, offer))
	require.NoError(t, claims.Insert(ctx, parking.Claim{
		ID:       "claim-1",
		Resource: 3,
		Claimer:  "bob",
		Owner:    "alice",
		OfferID:  offer.ID,
		Window:   win(time.Monday, 0, time.Monday, 2),
	}))

	sweeper := parking.NewSweeper(offers, claims, clock)

	// WHEN: nothing has expired yet
	removed, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	// AND WHEN: time passes the windows' end
	clock.Set(at(time.Monday, 2).Add(time.Second))
	removed, err = sweeper.RunOnce(ctx)

	// THEN: both rows are gone
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining, err := offers.ByResource(ctx, 3, mondayBase())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestSweeper_RunOnce_Idempotent(t *testing.T) {
	clock := &fixedClock{t: at(time.Friday, 0)}
	offers := memory.NewOfferStore()
	claims := memory.NewClaimStore()
	ctx := context.Background()

	require.NoError(t, offers.Insert(ctx, parking.Offer{
		ID:       "offer-1",
		Resource: 3,
		Owner:    "alice",
		Window:   win(time.Monday, 8, time.Monday, 18),
	}))

	removed, err := parking.NewSweeper(offers, claims, clock).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = parking.NewSweeper(offers, claims, clock).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "a second sweep over the same state removes nothing")
}

func TestSweeper_StartStop(t *testing.T) {
	clock := &fixedClock{t: mondayBase()}
	sweeper := parking.NewSweeper(memory.NewOfferStore(), memory.NewClaimStore(), clock)
	sweeper.Interval = 10 * time.Millisecond

	sweeper.Start()
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
	sweeper.Stop() // a second stop is a no-op, not a panic
}
