// Package bridge translates domain events into topic emissions on the
// broadcast hub. It is a pure, synchronous mapping layer: no business
// logic, one (topic, payload) pair per event, a server timestamp stamped
// on every payload.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/showroomhq/testdrive-core/internal/domain"
	"github.com/showroomhq/testdrive-core/pkg/logger"
)

// Topic name builders. Clients subscribe with these exact strings.
func SlotsTopic(showroomID, date string) string { return fmt.Sprintf("slots:%s:%s", showroomID, date) }
func BookingsTopic(showroomID string) string    { return fmt.Sprintf("bookings:%s", showroomID) }
func ScheduleTopic(salesExecID string) string   { return fmt.Sprintf("schedule:%s", salesExecID) }
func NotificationsTopic(userID string) string   { return fmt.Sprintf("notifications:%s", userID) }

// Publisher fans a payload out to a topic's subscribers. The in-process hub
// satisfies it; so does the NATS relay for multi-instance deployments.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Bridge publishes every translated event to the local hub and, when a
// backbone is configured, to the cross-instance relay as well.
type Bridge struct {
	local    Publisher
	backbone Publisher
	now      func() time.Time
}

func New(local Publisher) *Bridge {
	return &Bridge{local: local, now: time.Now}
}

// WithBackbone attaches a cross-instance publisher (the NATS relay).
func (b *Bridge) WithBackbone(p Publisher) *Bridge {
	b.backbone = p
	return b
}

// Wire payload shapes. Every payload carries type and an ISO-8601 server
// timestamp; the remaining fields are event-specific.
type slotPayload struct {
	Type       domain.EventType `json:"type"`
	HoldID     string           `json:"hold_id"`
	ShowroomID string           `json:"showroom_id"`
	Date       string           `json:"date"`
	StartTime  string           `json:"start_time"`
	CarModelID string           `json:"car_model_id,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	BookingID  string           `json:"booking_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

type bookingPayload struct {
	Type      domain.EventType       `json:"type"`
	Booking   *domain.BookingSummary `json:"booking,omitempty"`
	BookingID string                 `json:"booking_id,omitempty"`
	Status    domain.BookingStatus   `json:"status,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type notificationPayload struct {
	Type      domain.EventType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Payload   map[string]any   `json:"payload,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Emit maps a domain event to its topic and payload and publishes it. The
// caller has already applied the state mutation; Emit never fails the
// triggering operation.
func (b *Bridge) Emit(ev domain.Event) {
	topic, payload := b.translate(ev)
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("marshal broadcast payload", "type", ev.Kind(), "error", err)
		return
	}
	b.local.Publish(topic, data)
	if b.backbone != nil {
		b.backbone.Publish(topic, data)
	}
}

func (b *Bridge) translate(ev domain.Event) (string, any) {
	ts := b.now().UTC()
	switch e := ev.(type) {
	case domain.SlotHeld:
		exp := e.ExpiresAt
		return SlotsTopic(e.Slot.ShowroomID, e.Slot.Date), slotPayload{
			Type:       domain.TypeSlotHeld,
			HoldID:     e.HoldID,
			ShowroomID: e.Slot.ShowroomID,
			Date:       e.Slot.Date,
			StartTime:  e.Slot.StartTime,
			CarModelID: e.Slot.CarModelID,
			ExpiresAt:  &exp,
			Timestamp:  ts,
		}
	case domain.SlotReleased:
		return SlotsTopic(e.Slot.ShowroomID, e.Slot.Date), slotPayload{
			Type:       domain.TypeSlotReleased,
			HoldID:     e.HoldID,
			ShowroomID: e.Slot.ShowroomID,
			Date:       e.Slot.Date,
			StartTime:  e.Slot.StartTime,
			CarModelID: e.Slot.CarModelID,
			Timestamp:  ts,
		}
	case domain.SlotBooked:
		return SlotsTopic(e.Slot.ShowroomID, e.Slot.Date), slotPayload{
			Type:       domain.TypeSlotBooked,
			HoldID:     e.HoldID,
			ShowroomID: e.Slot.ShowroomID,
			Date:       e.Slot.Date,
			StartTime:  e.Slot.StartTime,
			CarModelID: e.Slot.CarModelID,
			BookingID:  e.BookingID,
			Timestamp:  ts,
		}
	case domain.BookingCreated:
		booking := e.Booking
		return BookingsTopic(booking.Slot.ShowroomID), bookingPayload{
			Type:      domain.TypeBookingCreated,
			Booking:   &booking,
			Timestamp: ts,
		}
	case domain.BookingUpdated:
		return BookingsTopic(e.ShowroomID), bookingPayload{
			Type:      domain.TypeBookingUpdated,
			BookingID: e.BookingID,
			Status:    e.Status,
			Timestamp: ts,
		}
	case domain.NewAssignment:
		booking := e.Booking
		return ScheduleTopic(e.SalesExecID), bookingPayload{
			Type:      domain.TypeNewAssignment,
			Booking:   &booking,
			Timestamp: ts,
		}
	case domain.UserNotification:
		return NotificationsTopic(e.UserID), notificationPayload{
			Type:      domain.TypeNotification,
			Title:     e.Title,
			Body:      e.Body,
			Payload:   e.Payload,
			Timestamp: ts,
		}
	default:
		// Unreachable: domain.Event is a sealed set.
		panic(fmt.Sprintf("bridge: unhandled event type %T", ev))
	}
}
