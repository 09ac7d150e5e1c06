package ws

import (
	"encoding/json"
	"time"

	"github.com/showroomhq/testdrive-core/internal/domain"
)

// Client-to-server actions. Topic membership and hold operations share one
// connection but are decoupled: a client issues hold requests and
// separately subscribes to the topic that reports the outcome, so other
// clients watching the same slot learn of the change the same way.
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	actionAcquire     = "acquire"
	actionRenew       = "renew"
	actionRelease     = "release"
	actionConvert     = "convert"
)

type clientMessage struct {
	Action  string          `json:"action"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type serverMessage struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

const (
	eventSubscribed   = "subscribed"
	eventUnsubscribed = "unsubscribed"
	eventResult       = "result"
	eventError        = "error"
)

type channelData struct {
	Channel string `json:"channel"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type acquireRequest struct {
	ShowroomID string `json:"showroom_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	CarModelID string `json:"car_model_id,omitempty"`
}

type holdRequest struct {
	HoldID string `json:"hold_id"`
}

type convertRequest struct {
	HoldID   string              `json:"hold_id"`
	Customer domain.CustomerInfo `json:"customer"`
}

type holdData struct {
	HoldID     string    `json:"hold_id"`
	ShowroomID string    `json:"showroom_id"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	CarModelID string    `json:"car_model_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func holdToData(h domain.Hold) holdData {
	return holdData{
		HoldID:     h.ID,
		ShowroomID: h.Slot.ShowroomID,
		Date:       h.Slot.Date,
		StartTime:  h.Slot.StartTime,
		CarModelID: h.Slot.CarModelID,
		ExpiresAt:  h.ExpiresAt,
	}
}
