package views

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenloop/ewaste-monitor/internal/models"
)

func deviceWithStatus(id string, status models.DeviceStatus) models.Device {
	return models.Device{ID: id, Type: "laptop", Status: status}
}

func deviceAt(id string, lat, lng float64) models.Device {
	return models.Device{ID: id, Status: models.StatusCollected, Lat: &lat, Lng: &lng}
}

func TestStatusDistributionPartitionsEveryDeviceOnce(t *testing.T) {
	devices := []models.Device{
		deviceWithStatus("a", models.StatusCollected),
		deviceWithStatus("b", models.StatusCollected),
		deviceWithStatus("c", models.StatusInTransit),
		deviceWithStatus("d", models.StatusRecycled),
		deviceWithStatus("e", models.StatusFlagged),
	}

	dist := StatusDistribution(devices)

	require.Len(t, dist.Buckets, len(models.AllStatuses))
	assert.Equal(t, 5, dist.Total)

	counted := 0
	percent := 0.0
	for _, b := range dist.Buckets {
		counted += b.Count
		percent += b.Percent
		assert.Equal(t, b.Status.Color(), b.Color)
	}
	assert.Equal(t, 5, counted)
	assert.InDelta(t, 100.0, percent, 0.5)
}

func TestStatusDistributionKeepsBucketOrder(t *testing.T) {
	dist := StatusDistribution(nil)

	require.Len(t, dist.Buckets, len(models.AllStatuses))
	for i, status := range models.AllStatuses {
		assert.Equal(t, status, dist.Buckets[i].Status)
	}
}

func TestStatusDistributionEmptyCollection(t *testing.T) {
	dist := StatusDistribution([]models.Device{})

	assert.Equal(t, 0, dist.Total)
	for _, b := range dist.Buckets {
		assert.Zero(t, b.Count)
		assert.Zero(t, b.Percent)
	}
}

func TestMapPointsProjection(t *testing.T) {
	devices := []models.Device{
		deviceAt("origin", 0, 0),
		deviceAt("northwest", 90, -180),
		deviceAt("southeast", -90, 180),
	}

	view := MapPoints(devices)

	require.Len(t, view.Points, 3)
	assert.Equal(t, MapWidth, view.Width)
	assert.Equal(t, MapHeight, view.Height)

	assert.InDelta(t, 400, view.Points[0].X, 1e-9)
	assert.InDelta(t, 200, view.Points[0].Y, 1e-9)
	assert.InDelta(t, 0, view.Points[1].X, 1e-9)
	assert.InDelta(t, 0, view.Points[1].Y, 1e-9)
	assert.InDelta(t, 800, view.Points[2].X, 1e-9)
	assert.InDelta(t, 400, view.Points[2].Y, 1e-9)
}

func TestMapPointsExcludesUnusableCoordinates(t *testing.T) {
	nan := math.NaN()
	lat, lng := 10.0, 10.0
	devices := []models.Device{
		{ID: "no-coords", Status: models.StatusCollected},
		{ID: "nan-lat", Status: models.StatusCollected, Lat: &nan, Lng: &lng},
		deviceAt("lat-out-of-range", 91, 0),
		deviceAt("lng-out-of-range", 0, -181),
		{ID: "usable", Status: models.StatusCollected, Lat: &lat, Lng: &lng},
	}

	view := MapPoints(devices)

	require.Len(t, view.Points, 1)
	assert.Equal(t, "usable", view.Points[0].DeviceID)
}

func TestMapPointsCarryStatusColor(t *testing.T) {
	view := MapPoints([]models.Device{deviceAt("a", 52.5, 13.4)})

	require.Len(t, view.Points, 1)
	assert.Equal(t, models.StatusCollected.Color(), view.Points[0].Color)
}

func TestLiveFeedCapsAtLimit(t *testing.T) {
	now := time.Now()
	events := make([]models.Event, FeedLimit+10)
	for i := range events {
		events[i] = models.Event{ID: int64(len(events) - i), DeviceID: "dev-001", Kind: models.EventScan, Timestamp: models.Timestamp{Time: now}}
	}

	feed := LiveFeed(events, now)

	require.Len(t, feed, FeedLimit)
	assert.Equal(t, int64(FeedLimit+10), feed[0].ID, "newest entry stays first")
}

func TestLiveFeedBadges(t *testing.T) {
	now := time.Now()
	events := []models.Event{
		{ID: 1, Kind: models.EventHazmatAlert, Timestamp: models.Timestamp{Time: now}},
		{ID: 2, Kind: models.EventHazmatDetected, Timestamp: models.Timestamp{Time: now}},
		{ID: 3, Kind: models.EventStatusChange, NewStatus: models.StatusProcessing, Timestamp: models.Timestamp{Time: now}},
		{ID: 4, Kind: models.EventScan, Timestamp: models.Timestamp{Time: now}},
		{ID: 5, Kind: "weight_verified", Timestamp: models.Timestamp{Time: now}},
	}

	feed := LiveFeed(events, now)

	require.Len(t, feed, 5)
	assert.Equal(t, BadgeAlert, feed[0].Badge)
	assert.Equal(t, BadgeAlert, feed[1].Badge)
	assert.Equal(t, BadgeStatus, feed[2].Badge)
	assert.Equal(t, models.StatusProcessing, feed[2].NewStatus)
	assert.Equal(t, BadgeInfo, feed[3].Badge)
	assert.Equal(t, BadgeInfo, feed[4].Badge)
}

func TestElapsedPhrases(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		age  time.Duration
		want string
	}{
		{0, "0s ago"},
		{5 * time.Second, "5s ago"},
		{59 * time.Second, "59s ago"},
		{60 * time.Second, "1m ago"},
		{59*time.Minute + 59*time.Second, "59m ago"},
		{time.Hour, "1h ago"},
		{90 * time.Minute, "1h ago"},
		{26 * time.Hour, "26h ago"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, Elapsed(now, now.Add(-tc.age)))
		})
	}
}

func TestElapsedClampsFutureInstants(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "0s ago", Elapsed(now, now.Add(30*time.Second)))
	assert.Equal(t, "0s ago", Elapsed(now, time.Time{}))
}

func TestDeviceTableFiltersByExactStatus(t *testing.T) {
	devices := []models.Device{
		deviceWithStatus("a", models.StatusCollected),
		deviceWithStatus("b", models.StatusFlagged),
		deviceWithStatus("c", models.StatusCollected),
	}

	view := DeviceTable(devices, string(models.StatusFlagged))

	assert.Equal(t, 1, view.Matching)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "b", view.Rows[0].ID)
	assert.Equal(t, models.StatusFlagged.Color(), view.Rows[0].StatusColor)
}

func TestDeviceTableEmptyFilterMeansAll(t *testing.T) {
	devices := []models.Device{
		deviceWithStatus("a", models.StatusCollected),
		deviceWithStatus("b", models.StatusFlagged),
	}

	view := DeviceTable(devices, "")

	assert.Equal(t, FilterAll, view.Filter)
	assert.Equal(t, 2, view.Matching)
	assert.Len(t, view.Rows, 2)
}

func TestDeviceTableUnknownFilterYieldsNoRows(t *testing.T) {
	view := DeviceTable([]models.Device{deviceWithStatus("a", models.StatusCollected)}, "incinerated")

	assert.Zero(t, view.Matching)
	assert.Empty(t, view.Rows)
}

func TestDeviceTableCapsRowsButCountsAllMatches(t *testing.T) {
	devices := make([]models.Device, TableLimit+7)
	for i := range devices {
		devices[i] = deviceWithStatus(fmt.Sprintf("dev-%02d", i), models.StatusCollected)
	}

	view := DeviceTable(devices, FilterAll)

	assert.Equal(t, TableLimit+7, view.Matching)
	require.Len(t, view.Rows, TableLimit)
	assert.Equal(t, "dev-00", view.Rows[0].ID, "collection order is preserved")
}

func TestDeviceTableRowsMarkHighHazard(t *testing.T) {
	devices := []models.Device{
		{ID: "hot", Status: models.StatusCollected, HazardScore: 7.5},
		{ID: "edge", Status: models.StatusCollected, HazardScore: 7.0},
	}

	view := DeviceTable(devices, FilterAll)

	require.Len(t, view.Rows, 2)
	assert.True(t, view.Rows[0].HighHazard)
	assert.False(t, view.Rows[1].HighHazard, "threshold is strictly greater than")
}

func TestConnectionBadge(t *testing.T) {
	live := Connection("live")
	assert.True(t, live.Live)
	assert.Equal(t, "#4ade80", live.Color)

	errBadge := Connection("error")
	assert.False(t, errBadge.Live)
	assert.Equal(t, "#f87171", errBadge.Color)

	idle := Connection("idle")
	assert.Equal(t, "Idle", idle.Label)

	unknown := Connection("warp")
	assert.Equal(t, "Idle", unknown.Label)
	assert.False(t, unknown.Live)
}
