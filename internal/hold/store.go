package hold

import (
	"sync"
	"time"

	"github.com/showroomhq/testdrive-core/internal/domain"
)

// Store is the authoritative in-memory state of which slots are currently
// held or booked. It keeps a primary index by slot key and a secondary
// index by hold id for O(1) release and renew. All operations are atomic
// with respect to each other under a single mutex; concurrent acquire
// attempts for the same slot resolve with exactly one winner.
//
// Expiry is a predicate over ExpiresAt, not an external event: Get and Put
// treat an expired hold as absent even before the sweeper evicts it.
type Store struct {
	mu     sync.Mutex
	bySlot map[domain.SlotKey]domain.Hold
	byID   map[string]domain.SlotKey
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		bySlot: make(map[domain.SlotKey]domain.Hold),
		byID:   make(map[string]domain.SlotKey),
		now:    time.Now,
	}
}

// Put inserts a hold for its slot key. It fails with ErrAlreadyHeld when a
// live hold with a different id occupies the slot. Re-inserting the same
// hold id succeeds, so retried acquire calls are idempotent. A dead
// (expired, unswept) hold is displaced silently.
func (s *Store) Put(h domain.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bySlot[h.Slot]; ok {
		if existing.Live(s.now()) && existing.ID != h.ID {
			return domain.ErrAlreadyHeld
		}
		delete(s.byID, existing.ID)
	}
	s.bySlot[h.Slot] = h
	s.byID[h.ID] = h.Slot
	return nil
}

// Get returns the live hold for a slot, if any.
func (s *Store) Get(key domain.SlotKey) (domain.Hold, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.bySlot[key]
	if !ok || !h.Live(s.now()) {
		return domain.Hold{}, false
	}
	return h, true
}

// GetByID returns the hold with the given id even when it has expired but
// not yet been swept; callers distinguish expired from absent themselves
// (convert must fail with ErrExpired, not ErrNotFound).
func (s *Store) GetByID(holdID string) (domain.Hold, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[holdID]
	if !ok {
		return domain.Hold{}, false
	}
	return s.bySlot[key], true
}

// Remove deletes a hold by id. Removing an absent hold is a no-op, which
// keeps release idempotent. The removed hold is returned when present so
// callers can build the release event from it.
func (s *Store) Remove(holdID string) (domain.Hold, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(holdID)
}

func (s *Store) removeLocked(holdID string) (domain.Hold, bool) {
	key, ok := s.byID[holdID]
	if !ok {
		return domain.Hold{}, false
	}
	h := s.bySlot[key]
	delete(s.bySlot, key)
	delete(s.byID, holdID)
	return h, true
}

// Renew extends a hold's expiry. It fails with ErrNotFound when the hold is
// absent, already expired, or already converted.
func (s *Store) Renew(holdID string, newExpiresAt time.Time) (domain.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[holdID]
	if !ok {
		return domain.Hold{}, domain.ErrNotFound
	}
	h := s.bySlot[key]
	if h.Booked || !h.Live(s.now()) {
		return domain.Hold{}, domain.ErrNotFound
	}
	h.ExpiresAt = newExpiresAt
	s.bySlot[key] = h
	return h, nil
}

// ListExpired returns every hold whose TTL has passed as of now. Booked
// sentinels never expire. The result is a snapshot; callers evict each
// hold individually via Evict so a concurrent renew wins.
func (s *Store) ListExpired(now time.Time) []domain.Hold {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []domain.Hold
	for _, h := range s.bySlot {
		if !h.Live(now) {
			expired = append(expired, h)
		}
	}
	return expired
}

// Evict removes a hold only if it is still expired at the given instant.
// A hold renewed between ListExpired and Evict observes its renewed expiry
// and survives; a hold that was already superseded is simply gone.
func (s *Store) Evict(holdID string, now time.Time) (domain.Hold, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[holdID]
	if !ok {
		return domain.Hold{}, false
	}
	if h := s.bySlot[key]; !h.Live(now) {
		return s.removeLocked(holdID)
	}
	return domain.Hold{}, false
}

// FinalizeBooking atomically replaces the hold on a slot with a permanent
// booked sentinel. It is called after the external booking write succeeds,
// so the slot must end up occupied even if the original hold was swept in
// the meantime. When a different hold occupies the slot at finalize time
// (the original expired mid-write and another session acquired the gap),
// that hold is returned as displaced so the caller can emit a release for
// it; its session would otherwise never learn its hold is gone.
func (s *Store) FinalizeBooking(key domain.SlotKey, holdID, bookingRef string, sessionID string) (sentinel, displaced domain.Hold, wasDisplaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bySlot[key]; ok {
		delete(s.byID, existing.ID)
		if existing.ID != holdID {
			displaced, wasDisplaced = existing, true
		}
	}
	sentinel = domain.Hold{
		ID:         holdID,
		Slot:       key,
		SessionID:  sessionID,
		CreatedAt:  s.now(),
		Booked:     true,
		BookingRef: bookingRef,
	}
	s.bySlot[key] = sentinel
	s.byID[holdID] = key
	return sentinel, displaced, wasDisplaced
}

// ReleaseSlot drops whatever occupies a slot, sentinel or live hold. Used
// when a booking is cancelled and the slot becomes available again.
func (s *Store) ReleaseSlot(key domain.SlotKey) (domain.Hold, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.bySlot[key]
	if !ok {
		return domain.Hold{}, false
	}
	delete(s.bySlot, key)
	delete(s.byID, h.ID)
	return h, true
}

// Len reports the number of tracked holds, sentinels included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bySlot)
}
