package models

// Summary is the backend's aggregate analytics snapshot. It is owned by the
// reconciler and replaced wholesale on every successful snapshot fetch;
// stream events never patch it, so its counts may lag device mutations by
// up to one refresh interval.
type Summary struct {
	TotalDevices             int                  `json:"total_devices"`
	TotalWeightKg            float64              `json:"total_weight_kg"`
	TotalCO2SavedKg          float64              `json:"total_co2_saved_kg"`
	StatusBreakdown          map[DeviceStatus]int `json:"status_breakdown"`
	FlaggedCount             int                  `json:"flagged_count"`
	HighHazardCount          int                  `json:"high_hazard_count"`
	UncertifiedFacilityCount int                  `json:"uncertified_facility_count"`
	RecycledCount            int                  `json:"recycled_count"`
	ComplianceRate           float64              `json:"compliance_rate"`
	Facilities               []Facility           `json:"facilities"`
	RecentAlerts             []Alert              `json:"recent_alerts"`
	EventsToday              int                  `json:"events_today"`
}
