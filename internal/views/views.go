// Package views projects reconciled state into the read models served to
// dashboard clients. Every projection is a pure function of its inputs so
// a view can be recomputed from any consistent state copy at any time.
package views

import (
	"fmt"
	"math"
	"time"

	"github.com/greenloop/ewaste-monitor/internal/models"
)

// Map viewport dimensions. Points are projected with an equirectangular
// mapping onto this fixed canvas; consumers scale it to their own size.
const (
	MapWidth  = 800.0
	MapHeight = 400.0
)

// Caps for the scrolling feed and the device table.
const (
	FeedLimit  = 30
	TableLimit = 20
)

// StatusBucket is one slice of the status distribution.
type StatusBucket struct {
	Status  models.DeviceStatus `json:"status"`
	Color   string              `json:"color"`
	Count   int                 `json:"count"`
	Percent float64             `json:"percent"`
}

// Distribution partitions the device collection by lifecycle status. All
// six known statuses are always present, zero-count buckets included, in
// lifecycle order.
type Distribution struct {
	Total   int            `json:"total"`
	Buckets []StatusBucket `json:"buckets"`
}

// StatusDistribution counts devices per status and derives each bucket's
// percentage share. An empty collection yields six zero buckets with zero
// percentages rather than a division error.
func StatusDistribution(devices []models.Device) Distribution {
	counts := make(map[models.DeviceStatus]int, len(models.AllStatuses))
	for i := range devices {
		counts[devices[i].Status]++
	}

	dist := Distribution{
		Total:   len(devices),
		Buckets: make([]StatusBucket, 0, len(models.AllStatuses)),
	}
	for _, status := range models.AllStatuses {
		bucket := StatusBucket{
			Status: status,
			Color:  status.Color(),
			Count:  counts[status],
		}
		if dist.Total > 0 {
			bucket.Percent = math.Round(float64(bucket.Count)/float64(dist.Total)*1000) / 10
		}
		dist.Buckets = append(dist.Buckets, bucket)
	}
	return dist
}

// MapPoint is a device positioned on the map viewport, colored by status.
type MapPoint struct {
	DeviceID string              `json:"device_id"`
	Status   models.DeviceStatus `json:"status"`
	Color    string              `json:"color"`
	X        float64             `json:"x"`
	Y        float64             `json:"y"`
}

// MapView is the geospatial projection of the device collection.
type MapView struct {
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Points []MapPoint `json:"points"`
}

// MapPoints projects device coordinates onto the viewport with an
// equirectangular mapping. Devices with absent, non-finite, or
// out-of-range coordinates are excluded from the map but remain part of
// every other view.
func MapPoints(devices []models.Device) MapView {
	view := MapView{Width: MapWidth, Height: MapHeight}
	for i := range devices {
		d := &devices[i]
		if d.Lat == nil || d.Lng == nil {
			continue
		}
		lat, lng := *d.Lat, *d.Lng
		if !finite(lat) || !finite(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			continue
		}
		view.Points = append(view.Points, MapPoint{
			DeviceID: d.ID,
			Status:   d.Status,
			Color:    d.Status.Color(),
			X:        (lng + 180) / 360 * MapWidth,
			Y:        (90 - lat) / 180 * MapHeight,
		})
	}
	return view
}

// Feed badge severities.
const (
	BadgeAlert  = "alert"
	BadgeStatus = "status"
	BadgeInfo   = "info"
)

// FeedEntry is one row of the live event feed.
type FeedEntry struct {
	ID        int64               `json:"id"`
	DeviceID  string              `json:"device_id"`
	Kind      string              `json:"kind"`
	NewStatus models.DeviceStatus `json:"new_status,omitempty"`
	Badge     string              `json:"badge"`
	Elapsed   string              `json:"elapsed"`
}

// LiveFeed renders the newest events, most recent first, capped at
// FeedLimit. Each entry carries a coarse elapsed-time phrase relative to
// now and a severity badge derived from the event kind.
func LiveFeed(events []models.Event, now time.Time) []FeedEntry {
	if len(events) > FeedLimit {
		events = events[:FeedLimit]
	}
	feed := make([]FeedEntry, 0, len(events))
	for i := range events {
		ev := &events[i]
		feed = append(feed, FeedEntry{
			ID:        ev.ID,
			DeviceID:  ev.DeviceID,
			Kind:      ev.Kind,
			NewStatus: ev.NewStatus,
			Badge:     badgeFor(ev.Kind),
			Elapsed:   Elapsed(now, ev.Timestamp.Time),
		})
	}
	return feed
}

func badgeFor(kind string) string {
	switch kind {
	case models.EventHazmatAlert, models.EventHazmatDetected:
		return BadgeAlert
	case models.EventStatusChange:
		return BadgeStatus
	default:
		return BadgeInfo
	}
}

// Elapsed formats the distance between now and a past instant as a coarse
// phrase: seconds under a minute, whole minutes under an hour, whole hours
// beyond. Future or zero instants clamp to zero seconds.
func Elapsed(now, then time.Time) string {
	diff := now.Sub(then)
	if then.IsZero() || diff < 0 {
		diff = 0
	}
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
}

// TableRow is one line of the device table.
type TableRow struct {
	ID                string              `json:"id"`
	Type              string              `json:"type"`
	WeightKg          float64             `json:"weight_kg"`
	HazardScore       float64             `json:"hazard_score"`
	HighHazard        bool                `json:"high_hazard"`
	Status            models.DeviceStatus `json:"status"`
	StatusColor       string              `json:"status_color"`
	FacilityName      string              `json:"facility_name"`
	CertifiedRecycler bool                `json:"certified_recycler"`
	CO2SavedKg        float64             `json:"co2_saved_kg"`
	LastSeen          models.Timestamp    `json:"last_seen"`
}

// TableView is the filtered, capped device table.
type TableView struct {
	Filter   string     `json:"filter"`
	Matching int        `json:"matching"`
	Rows     []TableRow `json:"rows"`
}

// FilterAll selects every device regardless of status.
const FilterAll = "all"

// DeviceTable renders the device table in collection order, filtered by
// exact status match and capped at TableLimit. An empty filter means all;
// a filter matching no known status simply yields zero rows.
func DeviceTable(devices []models.Device, filter string) TableView {
	view := TableView{Filter: filter}
	if filter == "" {
		view.Filter = FilterAll
	}
	for i := range devices {
		d := &devices[i]
		if view.Filter != FilterAll && string(d.Status) != view.Filter {
			continue
		}
		view.Matching++
		if len(view.Rows) == TableLimit {
			continue
		}
		view.Rows = append(view.Rows, TableRow{
			ID:                d.ID,
			Type:              d.Type,
			WeightKg:          d.WeightKg,
			HazardScore:       d.HazardScore,
			HighHazard:        d.HighHazard(),
			Status:            d.Status,
			StatusColor:       d.Status.Color(),
			FacilityName:      d.FacilityName,
			CertifiedRecycler: d.CertifiedRecycler,
			CO2SavedKg:        d.CO2SavedKg,
			LastSeen:          d.LastSeen,
		})
	}
	return view
}

// ConnectionView is the connection badge shown next to the live feed.
type ConnectionView struct {
	Status string `json:"status"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Live   bool   `json:"live"`
}

// Connection maps a stream status name onto its badge label and color.
func Connection(status string) ConnectionView {
	view := ConnectionView{Status: status}
	switch status {
	case "live":
		view.Label, view.Color, view.Live = "Live", "#4ade80", true
	case "connecting":
		view.Label, view.Color = "Connecting", "#facc15"
	case "reconnecting":
		view.Label, view.Color = "Reconnecting", "#facc15"
	case "error":
		view.Label, view.Color = "Connection Error", "#f87171"
	case "closed":
		view.Label, view.Color = "Closed", "#9ca3af"
	default:
		view.Label, view.Color = "Idle", "#9ca3af"
	}
	return view
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
