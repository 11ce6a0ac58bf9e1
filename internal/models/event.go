package models

import (
	"github.com/goccy/go-json"
)

// Known event kinds emitted by the field sensors. The kind tag is free-form
// on the wire; these cover the backend's current vocabulary.
const (
	EventScan           = "scan"
	EventStatusChange   = "status_change"
	EventWeightVerified = "weight_verified"
	EventHazmatAlert    = "hazmat_alert"
	EventHazmatDetected = "hazmat_detected"
	EventGPSUpdate      = "gps_update"
)

// Event is a point-in-time occurrence reported for a device. Events are
// retained only as a bounded most-recent-first log; they are never
// persisted or deduplicated.
type Event struct {
	ID         int64          `json:"id,omitempty"`
	DeviceID   string         `json:"device_id"`
	Kind       string         `json:"event_type"`
	Timestamp  Timestamp      `json:"timestamp"`
	FacilityID string         `json:"facility_id,omitempty"`
	NewStatus  DeviceStatus   `json:"new_status,omitempty"`
	Lat        *float64       `json:"lat,omitempty"`
	Lng        *float64       `json:"lng,omitempty"`
	Alert      *Alert         `json:"alert,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// UnmarshalJSON accepts both spellings of the kind tag: stored rows carry
// "event_type" while live sensor rows carry "event".
func (e *Event) UnmarshalJSON(data []byte) error {
	type Plain Event
	aux := struct {
		*Plain
		LiveKind string `json:"event"`
	}{Plain: (*Plain)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if e.Kind == "" {
		e.Kind = aux.LiveKind
	}
	return nil
}

// Alert is a condition raised by backend aggregation, rendered
// most-recent-first and capped for display.
type Alert struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp Timestamp `json:"timestamp"`
}
