package domain

import "time"

// Hold is a temporary exclusive claim on a SlotKey while a customer is
// mid-wizard. A hold is owned by the anonymous wizard session that acquired
// it, never by a durable user identity. Once converted into a booking the
// hold becomes a permanent sentinel (Booked=true) that keeps the slot
// occupied until the booking is cancelled.
type Hold struct {
	ID         string    `json:"hold_id"`
	Slot       SlotKey   `json:"slot"`
	SessionID  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Booked     bool      `json:"booked,omitempty"`
	BookingRef string    `json:"booking_ref,omitempty"`
}

// Live reports whether the hold still occupies its slot at the given
// instant. Booked sentinels never expire.
func (h Hold) Live(now time.Time) bool {
	return h.Booked || now.Before(h.ExpiresAt)
}
