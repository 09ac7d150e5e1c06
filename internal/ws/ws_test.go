package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/showroomhq/testdrive-core/internal/bridge"
	"github.com/showroomhq/testdrive-core/internal/domain"
	"github.com/showroomhq/testdrive-core/internal/hold"
	"github.com/showroomhq/testdrive-core/internal/hub"
)

// ---------- Fakes ----------

type staticVerifier map[string]string // token -> session id

func (v staticVerifier) Verify(token string) (string, error) {
	if sid, ok := v[token]; ok {
		return sid, nil
	}
	return "", fmt.Errorf("unknown token")
}

type memoryBookings struct {
	mu     sync.Mutex
	nextID int
}

func (m *memoryBookings) CreateBooking(_ context.Context, slot domain.SlotKey, customer domain.CustomerInfo) (domain.BookingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return domain.BookingSummary{
		ID:           fmt.Sprintf("booking-%d", m.nextID),
		Slot:         slot,
		CustomerName: customer.Name,
		Status:       domain.BookingConfirmed,
		CreatedAt:    time.Now(),
	}, nil
}

func (m *memoryBookings) CancelBooking(context.Context, string) (domain.BookingSummary, error) {
	return domain.BookingSummary{}, domain.ErrNotFound
}

func (m *memoryBookings) UpdateStatus(context.Context, string, domain.BookingStatus) (domain.BookingSummary, error) {
	return domain.BookingSummary{}, domain.ErrNotFound
}

func (m *memoryBookings) AssignSalesExec(context.Context, string, string) (domain.BookingSummary, error) {
	return domain.BookingSummary{}, domain.ErrNotFound
}

func (m *memoryBookings) SlotBooked(context.Context, domain.SlotKey) (bool, error) {
	return false, nil
}

// ---------- Harness ----------

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()

	broadcastHub := hub.New()
	eventBridge := bridge.New(broadcastHub)
	store := hold.NewStore()
	manager := hold.NewManager(store, &memoryBookings{}, eventBridge, 5*time.Minute)
	verifier := staticVerifier{"tokenA": "sess-a", "tokenB": "sess-b"}

	srv := NewServer(broadcastHub, manager, verifier)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeWS))
	t.Cleanup(ts.Close)
	return ts, broadcastHub
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "?session=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]json.RawMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// recvEnvelope reads the next server envelope, skipping interleaved topic
// broadcasts (a subscriber's own mutation delivers the topic event before
// the request's result).
func recvEnvelope(t *testing.T, conn *websocket.Conn) (event string, id string, data json.RawMessage) {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := recv(t, conn)
		raw, ok := msg["event"]
		if !ok {
			continue
		}
		_ = json.Unmarshal(raw, &event)
		if raw, ok := msg["id"]; ok {
			_ = json.Unmarshal(raw, &id)
		}
		return event, id, msg["data"]
	}
	t.Fatal("no envelope received")
	return "", "", nil
}

// recvTopic reads until a message keyed by the given topic arrives.
func recvTopic(t *testing.T, conn *websocket.Conn, topic string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := recv(t, conn)
		if raw, ok := msg[topic]; ok {
			var payload map[string]any
			if err := json.Unmarshal(raw, &payload); err != nil {
				t.Fatalf("decode topic payload: %v", err)
			}
			return payload
		}
	}
	t.Fatalf("no message for topic %s", topic)
	return nil
}

// ---------- Tests ----------

func TestUpgradeRequiresValidSession(t *testing.T) {
	ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial without session token should fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	if _, resp, err := websocket.DefaultDialer.Dial(url+"?session=bogus", nil); err == nil {
		t.Fatal("dial with bogus token should fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestSubscribeAck(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts, "tokenA")

	send(t, conn, map[string]string{"action": "subscribe", "channel": "bookings:showroomA"})
	event, _, data := recvEnvelope(t, conn)
	if event != "subscribed" {
		t.Fatalf("expected subscribed ack, got %s", event)
	}
	var ch channelData
	if err := json.Unmarshal(data, &ch); err != nil || ch.Channel != "bookings:showroomA" {
		t.Fatalf("ack must echo the resolved channel, got %s", string(data))
	}

	send(t, conn, map[string]string{"action": "unsubscribe", "channel": "bookings:showroomA"})
	if event, _, _ := recvEnvelope(t, conn); event != "unsubscribed" {
		t.Fatalf("expected unsubscribed ack, got %s", event)
	}
}

func TestUnknownActionReturnsError(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts, "tokenA")

	send(t, conn, map[string]string{"action": "explode"})
	event, _, data := recvEnvelope(t, conn)
	if event != "error" {
		t.Fatalf("expected error envelope, got %s", event)
	}
	var e errorData
	if err := json.Unmarshal(data, &e); err != nil || e.Code != "INVALID_INPUT" {
		t.Fatalf("unexpected error data: %s", string(data))
	}
}

// TestHoldFanOutScenario walks the full two-client flow: A holds a slot, B
// observes it on the slots topic, B's acquire is refused, A releases, B
// observes the release and acquires successfully.
func TestHoldFanOutScenario(t *testing.T) {
	ts, _ := newTestServer(t)
	topic := "slots:showroomA:2024-05-01"

	clientA := dial(t, ts, "tokenA")
	clientB := dial(t, ts, "tokenB")

	send(t, clientB, map[string]string{"action": "subscribe", "channel": topic})
	if event, _, _ := recvEnvelope(t, clientB); event != "subscribed" {
		t.Fatal("client B failed to subscribe")
	}

	acquire := map[string]any{
		"action": "acquire", "id": "req-1",
		"data": map[string]string{"showroom_id": "showroomA", "date": "2024-05-01", "start_time": "10:00"},
	}

	// A acquires the slot.
	send(t, clientA, acquire)
	event, id, data := recvEnvelope(t, clientA)
	if event != "result" || id != "req-1" {
		t.Fatalf("expected acquire result, got event=%s id=%s data=%s", event, id, string(data))
	}
	var h holdData
	if err := json.Unmarshal(data, &h); err != nil || h.HoldID == "" {
		t.Fatalf("expected hold in result, got %s", string(data))
	}
	if time.Until(h.ExpiresAt) <= 0 {
		t.Fatalf("hold must expire in the future, got %v", h.ExpiresAt)
	}

	// B observes SLOT_HELD for 10:00.
	payload := recvTopic(t, clientB, topic)
	if payload["type"] != "SLOT_HELD" || payload["start_time"] != "10:00" || payload["hold_id"] != h.HoldID {
		t.Fatalf("unexpected SLOT_HELD payload: %v", payload)
	}

	// B's own acquire attempt is refused.
	acquire["id"] = "req-2"
	send(t, clientB, acquire)
	event, id, data = recvEnvelope(t, clientB)
	if event != "error" || id != "req-2" {
		t.Fatalf("expected error for contended acquire, got event=%s data=%s", event, string(data))
	}
	var e errorData
	if err := json.Unmarshal(data, &e); err != nil || e.Code != "SLOT_UNAVAILABLE" {
		t.Fatalf("expected SLOT_UNAVAILABLE, got %s", string(data))
	}

	// B cannot release A's hold even knowing the hold id from the broadcast.
	send(t, clientB, map[string]any{
		"action": "release", "id": "req-3",
		"data": map[string]string{"hold_id": h.HoldID},
	})
	event, _, data = recvEnvelope(t, clientB)
	if event != "error" {
		t.Fatalf("expected NOT_OWNER error, got %s %s", event, string(data))
	}
	if err := json.Unmarshal(data, &e); err != nil || e.Code != "NOT_OWNER" {
		t.Fatalf("expected NOT_OWNER, got %s", string(data))
	}

	// A releases; B observes SLOT_RELEASED.
	send(t, clientA, map[string]any{
		"action": "release", "id": "req-4",
		"data": map[string]string{"hold_id": h.HoldID},
	})
	if event, _, _ := recvEnvelope(t, clientA); event != "result" {
		t.Fatal("release by owner should succeed")
	}
	payload = recvTopic(t, clientB, topic)
	if payload["type"] != "SLOT_RELEASED" || payload["hold_id"] != h.HoldID {
		t.Fatalf("unexpected SLOT_RELEASED payload: %v", payload)
	}

	// Now B's acquire succeeds.
	acquire["id"] = "req-5"
	send(t, clientB, acquire)
	event, id, data = recvEnvelope(t, clientB)
	if event != "result" || id != "req-5" {
		t.Fatalf("expected successful acquire after release, got event=%s data=%s", event, string(data))
	}
}

func TestConvertOverWebsocket(t *testing.T) {
	ts, _ := newTestServer(t)
	topic := "slots:showroomA:2024-05-01"

	clientA := dial(t, ts, "tokenA")
	watcher := dial(t, ts, "tokenB")

	send(t, watcher, map[string]string{"action": "subscribe", "channel": topic})
	if event, _, _ := recvEnvelope(t, watcher); event != "subscribed" {
		t.Fatal("watcher failed to subscribe")
	}

	send(t, clientA, map[string]any{
		"action": "acquire", "id": "req-1",
		"data": map[string]string{"showroom_id": "showroomA", "date": "2024-05-01", "start_time": "10:00"},
	})
	_, _, data := recvEnvelope(t, clientA)
	var h holdData
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("acquire result: %v", err)
	}

	send(t, clientA, map[string]any{
		"action": "convert", "id": "req-2",
		"data": map[string]any{
			"hold_id":  h.HoldID,
			"customer": map[string]string{"name": "Dana", "email": "dana@example.com", "phone": "555-0100"},
		},
	})
	event, _, data := recvEnvelope(t, clientA)
	if event != "result" {
		t.Fatalf("expected convert result, got %s %s", event, string(data))
	}
	var booking domain.BookingSummary
	if err := json.Unmarshal(data, &booking); err != nil || booking.ID == "" {
		t.Fatalf("expected booking summary, got %s", string(data))
	}

	// Watcher sees SLOT_HELD then SLOT_BOOKED.
	if payload := recvTopic(t, watcher, topic); payload["type"] != "SLOT_HELD" {
		t.Fatalf("expected SLOT_HELD first, got %v", payload)
	}
	payload := recvTopic(t, watcher, topic)
	if payload["type"] != "SLOT_BOOKED" || payload["booking_id"] != booking.ID {
		t.Fatalf("expected SLOT_BOOKED, got %v", payload)
	}
}

func TestDisconnectCleansUpSubscriptions(t *testing.T) {
	ts, broadcastHub := newTestServer(t)
	topic := "slots:showroomA:2024-05-01"

	conn := dial(t, ts, "tokenA")
	send(t, conn, map[string]string{"action": "subscribe", "channel": topic})
	if event, _, _ := recvEnvelope(t, conn); event != "subscribed" {
		t.Fatal("subscribe failed")
	}
	if n := broadcastHub.Subscribers(topic); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	conn.Close()

	deadline := time.After(2 * time.Second)
	for broadcastHub.Subscribers(topic) != 0 {
		select {
		case <-deadline:
			t.Fatal("disconnect did not clean up topic membership")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
