/*
Package memory provides RWMutex-guarded in-memory implementations of the
parking store contracts, for tests and single-process deployments.

Records are held per-resource in start-sorted slices, with id and
offer-link indexes for direct lookups and cascades. Every query copies
out, so callers never alias internal state.
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/johnfabrycky/felipe/parking"
)

// =============================================================================
// OFFER STORE
// =============================================================================

type OfferStore struct {
	mu         sync.RWMutex
	byResource map[parking.ResourceID][]parking.Offer
	byID       map[parking.OfferID]parking.Offer
}

func NewOfferStore() *OfferStore {
	return &OfferStore{
		byResource: make(map[parking.ResourceID][]parking.Offer),
		byID:       make(map[parking.OfferID]parking.Offer),
	}
}

func (s *OfferStore) Insert(_ context.Context, o parking.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(o)
	return nil
}

func (s *OfferStore) InsertBatch(_ context.Context, offers []parking.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range offers {
		s.insertLocked(o)
	}
	return nil
}

func (s *OfferStore) insertLocked(o parking.Offer) {
	rows := s.byResource[o.Resource]
	// Keep the slice sorted by window start, then creation time, so the
	// covering-offer tie-break is deterministic.
	i := sort.Search(len(rows), func(i int) bool {
		if rows[i].Window.Start.Equal(o.Window.Start) {
			return rows[i].CreatedAt.After(o.CreatedAt)
		}
		return rows[i].Window.Start.After(o.Window.Start)
	})
	rows = append(rows, parking.Offer{})
	copy(rows[i+1:], rows[i:])
	rows[i] = o
	s.byResource[o.Resource] = rows
	s.byID[o.ID] = o
}

func (s *OfferStore) Get(_ context.Context, id parking.OfferID) (parking.Offer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	return o, ok, nil
}

func (s *OfferStore) Overlapping(_ context.Context, resource parking.ResourceID, w parking.Window, asOf time.Time) ([]parking.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parking.Offer
	for _, o := range s.byResource[resource] {
		if o.Window.Expired(asOf) || !o.Window.Overlaps(w) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *OfferStore) ByResource(_ context.Context, resource parking.ResourceID, asOf time.Time) ([]parking.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parking.Offer
	for _, o := range s.byResource[resource] {
		if !o.Window.Expired(asOf) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *OfferStore) ByOwner(_ context.Context, owner parking.UserID, asOf time.Time) ([]parking.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parking.Offer
	for _, rows := range s.byResource {
		for _, o := range rows {
			if o.Owner == owner && !o.Window.Expired(asOf) {
				out = append(out, o)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start.Before(out[j].Window.Start) })
	return out, nil
}

func (s *OfferStore) Resources(_ context.Context, asOf time.Time) ([]parking.ResourceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parking.ResourceID
	for id, rows := range s.byResource {
		for _, o := range rows {
			if !o.Window.Expired(asOf) {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (s *OfferStore) Delete(_ context.Context, id parking.OfferID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	s.byResource[o.Resource] = removeOffer(s.byResource[o.Resource], id)
	return nil
}

func (s *OfferStore) DeleteExpired(_ context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for resource, rows := range s.byResource {
		kept := rows[:0]
		for _, o := range rows {
			if o.Window.Expired(asOf) {
				delete(s.byID, o.ID)
				removed++
				continue
			}
			kept = append(kept, o)
		}
		s.byResource[resource] = kept
	}
	return removed, nil
}

func removeOffer(rows []parking.Offer, id parking.OfferID) []parking.Offer {
	for i, o := range rows {
		if o.ID == id {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}

// =============================================================================
// CLAIM STORE
// =============================================================================

type ClaimStore struct {
	mu         sync.RWMutex
	byResource map[parking.ResourceID][]parking.Claim
	byID       map[parking.ClaimID]parking.Claim
}

func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		byResource: make(map[parking.ResourceID][]parking.Claim),
		byID:       make(map[parking.ClaimID]parking.Claim),
	}
}

func (s *ClaimStore) Insert(_ context.Context, c parking.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.byResource[c.Resource]
	i := sort.Search(len(rows), func(i int) bool {
		return rows[i].Window.Start.After(c.Window.Start)
	})
	rows = append(rows, parking.Claim{})
	copy(rows[i+1:], rows[i:])
	rows[i] = c
	s.byResource[c.Resource] = rows
	s.byID[c.ID] = c
	return nil
}

func (s *ClaimStore) Get(_ context.Context, id parking.ClaimID) (parking.Claim, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok, nil
}

func (s *ClaimStore) Overlapping(_ context.Context, resource parking.ResourceID, w parking.Window, asOf time.Time) ([]parking.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parking.Claim
	for _, c := range s.byResource[resource] {
		if c.Window.Expired(asOf) || !c.Window.Overlaps(w) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *ClaimStore) ByResource(_ context.Context, resource parking.ResourceID, asOf time.Time) ([]parking.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parking.Claim
	for _, c := range s.byResource[resource] {
		if !c.Window.Expired(asOf) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *ClaimStore) ByClaimer(_ context.Context, claimer parking.UserID, asOf time.Time) ([]parking.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parking.Claim
	for _, rows := range s.byResource {
		for _, c := range rows {
			if c.Claimer == claimer && !c.Window.Expired(asOf) {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start.Before(out[j].Window.Start) })
	return out, nil
}

func (s *ClaimStore) ByOffer(_ context.Context, offer parking.OfferID) ([]parking.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parking.Claim
	for _, rows := range s.byResource {
		for _, c := range rows {
			if c.OfferID == offer {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (s *ClaimStore) Delete(_ context.Context, id parking.ClaimID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	s.byResource[c.Resource] = removeClaim(s.byResource[c.Resource], id)
	return nil
}

func (s *ClaimStore) DeleteByOffer(_ context.Context, offer parking.OfferID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for resource, rows := range s.byResource {
		kept := rows[:0]
		for _, c := range rows {
			if c.OfferID == offer {
				delete(s.byID, c.ID)
				removed++
				continue
			}
			kept = append(kept, c)
		}
		s.byResource[resource] = kept
	}
	return removed, nil
}

func (s *ClaimStore) DeleteExpired(_ context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for resource, rows := range s.byResource {
		kept := rows[:0]
		for _, c := range rows {
			if c.Window.Expired(asOf) {
				delete(s.byID, c.ID)
				removed++
				continue
			}
			kept = append(kept, c)
		}
		s.byResource[resource] = kept
	}
	return removed, nil
}

func removeClaim(rows []parking.Claim, id parking.ClaimID) []parking.Claim {
	for i, c := range rows {
		if c.ID == id {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}
