package models

// Device represents one tracked e-waste item as reported by the backend.
// Records are only ever created or replaced from inbound data; the client
// never fabricates or deletes them.
type Device struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	WeightKg     float64      `json:"weight_kg"`
	HazardScore  float64      `json:"hazard_score"`
	Status       DeviceStatus `json:"status"`
	FacilityID   string       `json:"facility_id"`
	FacilityName string       `json:"facility_name"`

	// Coordinates may be absent or out of range on the wire; the view
	// layer excludes such devices from the map without dropping them
	// from the collection.
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`

	RegisteredAt      Timestamp `json:"registered_at"`
	LastSeen          Timestamp `json:"last_seen"`
	RFIDTag           string    `json:"rfid_tag"`
	CertifiedRecycler bool      `json:"certified_recycler"`
	CO2SavedKg        float64   `json:"co2_saved_kg"`
}

// HighHazardScore is the score above which a device counts as high hazard,
// matching the backend's aggregation threshold.
const HighHazardScore = 7.0

// HighHazard reports whether the device's hazard score crosses the
// high-hazard threshold.
func (d Device) HighHazard() bool {
	return d.HazardScore > HighHazardScore
}

// Facility is a registered handling facility. The enriched fields are only
// populated by the facilities endpoint.
type Facility struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Certified bool    `json:"certified"`

	DeviceCount int     `json:"device_count,omitempty"`
	WeightKg    float64 `json:"weight_kg,omitempty"`
}
