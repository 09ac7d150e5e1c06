package domain

import "fmt"

// SlotKey identifies a bookable test-drive time slot at a showroom on a
// given date. CarModelID narrows the slot to a specific car when the
// showroom books per vehicle; it is empty for showroom-wide slots.
type SlotKey struct {
	ShowroomID string `json:"showroom_id"`
	Date       string `json:"date"`       // YYYY-MM-DD
	StartTime  string `json:"start_time"` // HH:MM, showroom-local
	CarModelID string `json:"car_model_id,omitempty"`
}

func (k SlotKey) Valid() bool {
	return k.ShowroomID != "" && k.Date != "" && k.StartTime != ""
}

func (k SlotKey) String() string {
	if k.CarModelID == "" {
		return fmt.Sprintf("%s/%s/%s", k.ShowroomID, k.Date, k.StartTime)
	}
	return fmt.Sprintf("%s/%s/%s/%s", k.ShowroomID, k.Date, k.StartTime, k.CarModelID)
}
