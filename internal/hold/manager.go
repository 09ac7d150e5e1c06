package hold

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/showroomhq/testdrive-core/internal/domain"
	"github.com/showroomhq/testdrive-core/pkg/logger"
)

// Emitter receives domain events after the corresponding state mutation has
// been applied to the store. The event bridge implements it.
type Emitter interface {
	Emit(ev domain.Event)
}

// BookingStore is the persistence collaborator. It owns the durable booking
// rows; the hold manager only consults it for slot occupancy and delegates
// the durable writes to it.
type BookingStore interface {
	CreateBooking(ctx context.Context, slot domain.SlotKey, customer domain.CustomerInfo) (domain.BookingSummary, error)
	CancelBooking(ctx context.Context, bookingID string) (domain.BookingSummary, error)
	UpdateStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (domain.BookingSummary, error)
	AssignSalesExec(ctx context.Context, bookingID, salesExecID string) (domain.BookingSummary, error)
	SlotBooked(ctx context.Context, slot domain.SlotKey) (bool, error)
}

// Manager arbitrates exclusive possession of slot keys. It enforces
// at-most-one-holder, session ownership, and atomic conversion into a
// confirmed booking, emitting an event after every applied mutation.
type Manager struct {
	store    *Store
	bookings BookingStore
	emitter  Emitter
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(store *Store, bookings BookingStore, emitter Emitter, ttl time.Duration) *Manager {
	return &Manager{
		store:    store,
		bookings: bookings,
		emitter:  emitter,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Acquire claims a slot for a wizard session. It fails with
// ErrSlotUnavailable when a live hold or a durable booking already occupies
// the slot. The durable check runs before taking the store's slot, so the
// external call never blocks other store operations.
func (m *Manager) Acquire(ctx context.Context, slot domain.SlotKey, sessionID string) (domain.Hold, error) {
	if !slot.Valid() {
		return domain.Hold{}, fmt.Errorf("acquire: invalid slot key: %w", domain.ErrNotFound)
	}

	booked, err := m.bookings.SlotBooked(ctx, slot)
	if err != nil {
		return domain.Hold{}, fmt.Errorf("acquire: availability check: %w", err)
	}
	if booked {
		return domain.Hold{}, fmt.Errorf("acquire %s: durably booked: %w", slot, domain.ErrSlotUnavailable)
	}

	now := m.now()
	h := domain.Hold{
		ID:        uuid.New().String(),
		Slot:      slot,
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Put(h); err != nil {
		return domain.Hold{}, fmt.Errorf("acquire %s: %w", slot, domain.ErrSlotUnavailable)
	}

	m.emitter.Emit(domain.SlotHeld{HoldID: h.ID, Slot: slot, ExpiresAt: h.ExpiresAt})
	return h, nil
}

// Renew extends the hold's TTL window from now. Only the owning session may
// renew.
func (m *Manager) Renew(ctx context.Context, holdID, sessionID string) (domain.Hold, error) {
	h, ok := m.store.GetByID(holdID)
	if !ok || h.Booked {
		return domain.Hold{}, domain.ErrNotFound
	}
	if h.SessionID != sessionID {
		return domain.Hold{}, domain.ErrNotOwner
	}
	return m.store.Renew(holdID, m.now().Add(m.ttl))
}

// Release terminates a hold. Releasing an already-absent hold succeeds
// silently so retried releases are harmless; releasing someone else's hold
// fails with ErrNotOwner.
func (m *Manager) Release(ctx context.Context, holdID, sessionID string) error {
	h, ok := m.store.GetByID(holdID)
	if !ok || h.Booked {
		return nil
	}
	if h.SessionID != sessionID {
		return domain.ErrNotOwner
	}
	if removed, ok := m.store.Remove(holdID); ok {
		m.emitter.Emit(domain.SlotReleased{HoldID: removed.ID, Slot: removed.Slot})
	}
	return nil
}

// Convert turns a live hold into a confirmed booking. The durable write
// runs outside the store lock; only the in-memory finalize step is atomic.
// If the persistence collaborator fails, the hold is released as a
// compensating action so the slot does not stay falsely occupied.
func (m *Manager) Convert(ctx context.Context, holdID, sessionID string, customer domain.CustomerInfo) (domain.BookingSummary, error) {
	h, ok := m.store.GetByID(holdID)
	if !ok || h.Booked {
		return domain.BookingSummary{}, domain.ErrNotFound
	}
	if h.SessionID != sessionID {
		return domain.BookingSummary{}, domain.ErrNotOwner
	}
	if !h.Live(m.now()) {
		return domain.BookingSummary{}, domain.ErrExpired
	}

	booking, err := m.bookings.CreateBooking(ctx, h.Slot, customer)
	if err != nil {
		if removed, ok := m.store.Remove(holdID); ok {
			logger.WarnContext(ctx, "booking write failed, releasing hold",
				"hold_id", holdID, "slot", removed.Slot.String(), "error", err)
			m.emitter.Emit(domain.SlotReleased{HoldID: removed.ID, Slot: removed.Slot})
		}
		return domain.BookingSummary{}, fmt.Errorf("convert %s: %w", holdID, err)
	}

	_, displaced, wasDisplaced := m.store.FinalizeBooking(h.Slot, holdID, booking.ID, sessionID)
	if wasDisplaced {
		// Another session acquired the slot while the booking write was in
		// flight. The durable booking wins; the displaced hold terminates
		// here and its watchers need the release it will never get from the
		// sweeper.
		logger.WarnContext(ctx, "displaced hold during booking finalize",
			"hold_id", displaced.ID, "slot", displaced.Slot.String())
		m.emitter.Emit(domain.SlotReleased{HoldID: displaced.ID, Slot: displaced.Slot})
	}

	m.emitter.Emit(domain.SlotBooked{HoldID: holdID, Slot: h.Slot, BookingID: booking.ID})
	m.emitter.Emit(domain.BookingCreated{Booking: booking})
	if booking.SalesExecID != "" {
		m.emitter.Emit(domain.NewAssignment{SalesExecID: booking.SalesExecID, Booking: booking})
	}
	return booking, nil
}

// CancelBooking cancels a durable booking and frees its slot. The booked
// sentinel is cleared so the slot becomes acquirable again, and both the
// slot watchers and the showroom dashboard learn of the change.
func (m *Manager) CancelBooking(ctx context.Context, bookingID string) (domain.BookingSummary, error) {
	booking, err := m.bookings.CancelBooking(ctx, bookingID)
	if err != nil {
		return domain.BookingSummary{}, fmt.Errorf("cancel booking %s: %w", bookingID, err)
	}

	if released, ok := m.store.ReleaseSlot(booking.Slot); ok {
		m.emitter.Emit(domain.SlotReleased{HoldID: released.ID, Slot: released.Slot})
	}
	m.emitter.Emit(domain.BookingUpdated{
		BookingID:  booking.ID,
		ShowroomID: booking.Slot.ShowroomID,
		Status:     domain.BookingCanceled,
	})
	return booking, nil
}

// UpdateBookingStatus persists a booking status change and relays it to the
// showroom dashboard topic.
func (m *Manager) UpdateBookingStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (domain.BookingSummary, error) {
	if status == domain.BookingCanceled {
		return m.CancelBooking(ctx, bookingID)
	}
	booking, err := m.bookings.UpdateStatus(ctx, bookingID, status)
	if err != nil {
		return domain.BookingSummary{}, fmt.Errorf("update booking %s: %w", bookingID, err)
	}
	m.emitter.Emit(domain.BookingUpdated{
		BookingID:  booking.ID,
		ShowroomID: booking.Slot.ShowroomID,
		Status:     booking.Status,
	})
	return booking, nil
}

// AssignBooking puts a booking on a sales executive's schedule.
func (m *Manager) AssignBooking(ctx context.Context, bookingID, salesExecID string) (domain.BookingSummary, error) {
	booking, err := m.bookings.AssignSalesExec(ctx, bookingID, salesExecID)
	if err != nil {
		return domain.BookingSummary{}, fmt.Errorf("assign booking %s: %w", bookingID, err)
	}
	m.emitter.Emit(domain.NewAssignment{SalesExecID: salesExecID, Booking: booking})
	m.emitter.Emit(domain.BookingUpdated{
		BookingID:  booking.ID,
		ShowroomID: booking.Slot.ShowroomID,
		Status:     booking.Status,
	})
	return booking, nil
}
