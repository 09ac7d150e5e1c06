package hold

import (
	"context"
	"time"

	"github.com/showroomhq/testdrive-core/internal/domain"
	"github.com/showroomhq/testdrive-core/pkg/logger"
)

// Sweeper periodically evicts expired holds from the store and emits a
// release event for each. Eviction re-checks expiry under the store lock,
// so a hold renewed between the listing and the eviction survives, and a
// hold that was superseded by a new acquire is never released on behalf of
// its predecessor.
type Sweeper struct {
	store    *Store
	emitter  Emitter
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store *Store, emitter Emitter, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		emitter:  emitter,
		interval: interval,
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled. Call it from its own goroutine.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep performs a single eviction pass.
func (s *Sweeper) Sweep() {
	now := s.now()
	for _, h := range s.store.ListExpired(now) {
		evicted, ok := s.store.Evict(h.ID, now)
		if !ok {
			continue
		}
		logger.Debug("expired hold evicted", "hold_id", evicted.ID, "slot", evicted.Slot.String())
		s.emitter.Emit(domain.SlotReleased{HoldID: evicted.ID, Slot: evicted.Slot})
	}
}
