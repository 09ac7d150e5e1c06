package domain

import "time"

// EventType enumerates every broadcast event kind the platform emits.
type EventType string

const (
	TypeSlotHeld       EventType = "SLOT_HELD"
	TypeSlotReleased   EventType = "SLOT_RELEASED"
	TypeSlotBooked     EventType = "SLOT_BOOKED"
	TypeBookingCreated EventType = "BOOKING_CREATED"
	TypeBookingUpdated EventType = "BOOKING_UPDATED"
	TypeNewAssignment  EventType = "NEW_ASSIGNMENT"
	TypeNotification   EventType = "NOTIFICATION"
)

// Event is the closed set of domain events flowing from the hold manager
// and sweeper into the broadcast layer. The unexported marker keeps the
// set sealed so the bridge and any client can handle every case
// exhaustively.
type Event interface {
	Kind() EventType
	isEvent()
}

// SlotHeld is emitted when a session acquires a hold on a slot.
type SlotHeld struct {
	HoldID    string
	Slot      SlotKey
	ExpiresAt time.Time
}

// SlotReleased is emitted when a hold terminates without converting, either
// by explicit release, expiry sweep, or booking cancellation freeing the
// slot. HoldID tags the hold the release concerns so clients can discard
// releases for holds they no longer track.
type SlotReleased struct {
	HoldID string
	Slot   SlotKey
}

// SlotBooked is emitted when a hold converts into a confirmed booking and
// the slot becomes permanently occupied.
type SlotBooked struct {
	HoldID    string
	Slot      SlotKey
	BookingID string
}

// BookingCreated carries the booking summary to staff dashboards watching
// the showroom.
type BookingCreated struct {
	Booking BookingSummary
}

// BookingUpdated is emitted on any durable status change of a booking.
type BookingUpdated struct {
	BookingID  string
	ShowroomID string
	Status     BookingStatus
}

// NewAssignment is emitted when a booking lands on a sales executive's
// schedule.
type NewAssignment struct {
	SalesExecID string
	Booking     BookingSummary
}

// UserNotification is a notification feed entry for a single user.
type UserNotification struct {
	UserID  string
	Title   string
	Body    string
	Payload map[string]any
}

func (SlotHeld) Kind() EventType         { return TypeSlotHeld }
func (SlotReleased) Kind() EventType     { return TypeSlotReleased }
func (SlotBooked) Kind() EventType       { return TypeSlotBooked }
func (BookingCreated) Kind() EventType   { return TypeBookingCreated }
func (BookingUpdated) Kind() EventType   { return TypeBookingUpdated }
func (NewAssignment) Kind() EventType    { return TypeNewAssignment }
func (UserNotification) Kind() EventType { return TypeNotification }

func (SlotHeld) isEvent()         {}
func (SlotReleased) isEvent()     {}
func (SlotBooked) isEvent()       {}
func (BookingCreated) isEvent()   {}
func (BookingUpdated) isEvent()   {}
func (NewAssignment) isEvent()    {}
func (UserNotification) isEvent() {}
