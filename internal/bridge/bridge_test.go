package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/showroomhq/testdrive-core/internal/domain"
)

type capture struct {
	mu       sync.Mutex
	topics   []string
	payloads []map[string]any
}

func (c *capture) Publish(topic string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		panic(err)
	}
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, decoded)
}

func (c *capture) last() (string, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.topics) == 0 {
		return "", nil
	}
	return c.topics[len(c.topics)-1], c.payloads[len(c.payloads)-1]
}

var bridgeSlot = domain.SlotKey{ShowroomID: "showroomA", Date: "2024-05-01", StartTime: "10:00", CarModelID: "gt-sport"}

func TestEmitTranslations(t *testing.T) {
	booking := domain.BookingSummary{
		ID:           "booking-1",
		Slot:         bridgeSlot,
		CustomerName: "Dana",
		Status:       domain.BookingConfirmed,
		SalesExecID:  "exec-7",
		CreatedAt:    time.Now(),
	}

	stamp := time.Date(2024, 5, 1, 9, 55, 0, 0, time.UTC)

	tests := []struct {
		name      string
		event     domain.Event
		wantTopic string
		wantType  string
		check     func(t *testing.T, payload map[string]any)
	}{
		{
			name:      "slot held",
			event:     domain.SlotHeld{HoldID: "h1", Slot: bridgeSlot, ExpiresAt: stamp.Add(5 * time.Minute)},
			wantTopic: "slots:showroomA:2024-05-01",
			wantType:  "SLOT_HELD",
			check: func(t *testing.T, p map[string]any) {
				if p["hold_id"] != "h1" || p["start_time"] != "10:00" || p["car_model_id"] != "gt-sport" {
					t.Fatalf("unexpected payload: %v", p)
				}
				if p["expires_at"] == nil {
					t.Fatal("SLOT_HELD must carry expires_at")
				}
			},
		},
		{
			name:      "slot released",
			event:     domain.SlotReleased{HoldID: "h1", Slot: bridgeSlot},
			wantTopic: "slots:showroomA:2024-05-01",
			wantType:  "SLOT_RELEASED",
			check: func(t *testing.T, p map[string]any) {
				if p["hold_id"] != "h1" {
					t.Fatal("releases must be tagged with the hold they concern")
				}
			},
		},
		{
			name:      "slot booked",
			event:     domain.SlotBooked{HoldID: "h1", Slot: bridgeSlot, BookingID: "booking-1"},
			wantTopic: "slots:showroomA:2024-05-01",
			wantType:  "SLOT_BOOKED",
			check: func(t *testing.T, p map[string]any) {
				if p["booking_id"] != "booking-1" {
					t.Fatalf("unexpected payload: %v", p)
				}
			},
		},
		{
			name:      "booking created",
			event:     domain.BookingCreated{Booking: booking},
			wantTopic: "bookings:showroomA",
			wantType:  "BOOKING_CREATED",
			check: func(t *testing.T, p map[string]any) {
				b, ok := p["booking"].(map[string]any)
				if !ok || b["booking_id"] != "booking-1" {
					t.Fatalf("expected booking summary, got %v", p)
				}
			},
		},
		{
			name:      "booking updated",
			event:     domain.BookingUpdated{BookingID: "booking-1", ShowroomID: "showroomA", Status: domain.BookingCanceled},
			wantTopic: "bookings:showroomA",
			wantType:  "BOOKING_UPDATED",
			check: func(t *testing.T, p map[string]any) {
				if p["booking_id"] != "booking-1" || p["status"] != "canceled" {
					t.Fatalf("unexpected payload: %v", p)
				}
			},
		},
		{
			name:      "new assignment",
			event:     domain.NewAssignment{SalesExecID: "exec-7", Booking: booking},
			wantTopic: "schedule:exec-7",
			wantType:  "NEW_ASSIGNMENT",
			check: func(t *testing.T, p map[string]any) {
				if _, ok := p["booking"].(map[string]any); !ok {
					t.Fatalf("expected booking summary, got %v", p)
				}
			},
		},
		{
			name:      "notification",
			event:     domain.UserNotification{UserID: "user-1", Title: "Reminder", Body: "Your test drive is at 10:00"},
			wantTopic: "notifications:user-1",
			wantType:  "NOTIFICATION",
			check: func(t *testing.T, p map[string]any) {
				if p["title"] != "Reminder" {
					t.Fatalf("unexpected payload: %v", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &capture{}
			b := New(local)
			b.now = func() time.Time { return stamp }

			b.Emit(tt.event)

			topic, payload := local.last()
			if topic != tt.wantTopic {
				t.Fatalf("topic: got %s want %s", topic, tt.wantTopic)
			}
			if payload["type"] != tt.wantType {
				t.Fatalf("type: got %v want %s", payload["type"], tt.wantType)
			}
			ts, ok := payload["timestamp"].(string)
			if !ok {
				t.Fatal("every payload must carry a server timestamp")
			}
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				t.Fatalf("timestamp not ISO-8601: %v", err)
			}
			tt.check(t, payload)
		})
	}
}

func TestEmitMirrorsToBackbone(t *testing.T) {
	local, backbone := &capture{}, &capture{}
	b := New(local).WithBackbone(backbone)

	b.Emit(domain.SlotReleased{HoldID: "h1", Slot: bridgeSlot})

	localTopic, _ := local.last()
	backboneTopic, _ := backbone.last()
	if localTopic != backboneTopic || localTopic == "" {
		t.Fatalf("backbone must receive the same emission: local=%q backbone=%q", localTopic, backboneTopic)
	}
}
