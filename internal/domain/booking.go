package domain

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingAssigned  BookingStatus = "assigned"
	BookingCompleted BookingStatus = "completed"
	BookingCanceled  BookingStatus = "canceled"
	BookingNoShow    BookingStatus = "no_show"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingConfirmed, BookingAssigned, BookingCompleted, BookingCanceled, BookingNoShow:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// CustomerInfo is the contact detail captured by the wizard before a hold
// converts into a booking.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// BookingSummary is the projection of a durable booking that the broadcast
// layer relays. The booking row itself is owned by the persistence
// collaborator.
type BookingSummary struct {
	ID           string        `json:"booking_id"`
	Slot         SlotKey       `json:"slot"`
	CustomerName string        `json:"customer_name"`
	Status       BookingStatus `json:"status"`
	SalesExecID  string        `json:"sales_exec_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
