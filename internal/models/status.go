package models

// DeviceStatus is the lifecycle status of a tracked device. The set is
// closed and backend-authoritative: the client only observes transitions
// and must accept any status superseding any other.
type DeviceStatus string

const (
	StatusCollected  DeviceStatus = "collected"
	StatusInTransit  DeviceStatus = "in_transit"
	StatusAtFacility DeviceStatus = "at_facility"
	StatusProcessing DeviceStatus = "processing"
	StatusRecycled   DeviceStatus = "recycled"
	StatusFlagged    DeviceStatus = "flagged"
)

// AllStatuses lists every known status in display order.
var AllStatuses = []DeviceStatus{
	StatusCollected,
	StatusInTransit,
	StatusAtFacility,
	StatusProcessing,
	StatusRecycled,
	StatusFlagged,
}

// statusColors mirrors the backend's display palette.
var statusColors = map[DeviceStatus]string{
	StatusCollected:  "#4ade80",
	StatusInTransit:  "#facc15",
	StatusAtFacility: "#60a5fa",
	StatusProcessing: "#c084fc",
	StatusRecycled:   "#34d399",
	StatusFlagged:    "#f87171",
}

// IsValid reports whether s is one of the known statuses.
func (s DeviceStatus) IsValid() bool {
	_, ok := statusColors[s]
	return ok
}

// Color returns the display color for the status, or a neutral grey for
// anything outside the known set.
func (s DeviceStatus) Color() string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "#9ca3af"
}

func (s DeviceStatus) String() string {
	return string(s)
}
