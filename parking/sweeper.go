/*
sweeper.go - Periodic purge of expired offers and claims

PURPOSE:
  Offers and claims whose end has passed are logically expired; read paths
  already filter them out, so the sweeper only keeps storage and status
  queries bounded. The tick period is a staleness bound, not a
  correctness constant.

DESIGN:
  - Background goroutine on a ticker with a Start/Stop lifecycle
  - Each tick deletes End <= now from both stores
  - Idempotent: a second tick over the same state deletes nothing
  - Transient store errors are logged and retried on the next tick
*/
package parking

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired rows are purged.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically removes expired offers and claims.
type Sweeper struct {
	Offers   OfferStore
	Claims   ClaimStore
	Clock    Clock
	Interval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper builds a sweeper with the default interval.
func NewSweeper(offers OfferStore, claims ClaimStore, clock Clock) *Sweeper {
	return &Sweeper{
		Offers:   offers,
		Claims:   claims,
		Clock:    clock,
		Interval: DefaultSweepInterval,
		stop:     make(chan struct{}),
	}
}

// Start begins the background loop. Safe to call once.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()
	log.Printf("[Sweeper] Started with interval %v", s.Interval)
}

// Stop halts the loop and waits for the in-flight tick to finish.
// Further calls are no-ops.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	close(s.stop)
	s.wg.Wait()
	log.Println("[Sweeper] Stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// Sweep immediately on start so a restart does not wait a full tick.
	s.tick()

	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.C:
			s.tick()
		}
	}
}

func (s *Sweeper) tick() {
	if _, err := s.RunOnce(context.Background()); err != nil {
		log.Printf("[Sweeper] Sweep failed, retrying next tick: %v", err)
	}
}

// RunOnce performs a single sweep and returns the number of rows removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.Clock.Now()

	claims, err := s.Claims.DeleteExpired(ctx, now)
	if err != nil {
		return claims, err
	}
	offers, err := s.Offers.DeleteExpired(ctx, now)
	if err != nil {
		return claims + offers, err
	}
	if claims+offers > 0 {
		log.Printf("[Sweeper] Purged %d expired claims, %d expired offers", claims, offers)
	}
	return claims + offers, nil
}
