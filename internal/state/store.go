package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/greenloop/ewaste-monitor/internal/models"
)

// EventLogCapacity bounds the recent-event log; the oldest entries are
// evicted once the log is full.
const EventLogCapacity = 50

// ChangeKind labels a state transition for watchers.
type ChangeKind string

const (
	ChangeSnapshot ChangeKind = "snapshot"
	ChangeInit     ChangeKind = "init"
	ChangeEvent    ChangeKind = "event"
	ChangeDevice   ChangeKind = "device"
)

// Store is the single source of truth for the device collection, the
// recent-event log, and the aggregate summary. Updates from the snapshot
// and stream channels serialize through one mutex, applied in arrival
// order; readers always get a consistent copy and never observe a
// half-applied replacement. Devices are never removed — collections only
// grow or get replaced wholesale.
type Store struct {
	logger zerolog.Logger

	mu           sync.RWMutex
	devices      []models.Device
	index        map[string]int
	events       []models.Event
	summary      *models.Summary
	seeded       bool
	lastSnapshot time.Time

	watchers cmap.ConcurrentMap[string, chan ChangeKind]
}

// View is a consistent read-only copy of the store's state. Slices are
// copied; the summary pointer is shared but summaries are replaced
// wholesale and never mutated in place.
type View struct {
	Devices      []models.Device
	Events       []models.Event
	Summary      *models.Summary
	Seeded       bool
	LastSnapshot time.Time
}

// NewStore initializes an empty store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		logger:   logger,
		index:    make(map[string]int),
		watchers: cmap.New[chan ChangeKind](),
	}
}

// ApplySnapshot replaces the device collection and the summary wholesale
// with the result of a successful snapshot cycle. The event log is left
// untouched. The store takes ownership of the passed slices.
func (s *Store) ApplySnapshot(devices []models.Device, summary *models.Summary) {
	s.mu.Lock()
	s.devices = devices
	s.rebuildIndex()
	s.summary = summary
	s.seeded = true
	s.lastSnapshot = time.Now()
	s.warnUnknownStatuses(devices)
	s.mu.Unlock()

	s.logger.Debug().Int("devices", len(devices)).Msg("Applied snapshot refresh")
	s.notify(ChangeSnapshot)
}

// ApplyInit replaces the device collection and the event log wholesale
// from a stream init message, resynchronizing state after a (re)connect.
// The summary is left untouched; it is owned by the snapshot channel.
func (s *Store) ApplyInit(devices []models.Device, events []models.Event) {
	if len(events) > EventLogCapacity {
		events = events[:EventLogCapacity]
	}

	s.mu.Lock()
	s.devices = devices
	s.rebuildIndex()
	s.events = events
	s.seeded = true
	s.warnUnknownStatuses(devices)
	s.mu.Unlock()

	s.logger.Debug().Int("devices", len(devices)).Int("events", len(events)).Msg("Applied stream init")
	s.notify(ChangeInit)
}

// ApplyEvent prepends an event to the log, evicting beyond capacity. When
// the message carried an updated device record, that record replaces the
// stored one whole — last-write-wins, no field-level merging.
func (s *Store) ApplyEvent(ev models.Event, dev *models.Device) {
	s.mu.Lock()
	s.events = append([]models.Event{ev}, s.events...)
	if len(s.events) > EventLogCapacity {
		s.events = s.events[:EventLogCapacity]
	}
	if dev != nil {
		s.upsert(*dev)
	}
	s.mu.Unlock()

	s.notify(ChangeEvent)
}

// ApplyNewDevice prepends a newly registered device to the collection.
// If the id is already present the record is replaced and moved to the
// front, preserving one record per id.
func (s *Store) ApplyNewDevice(dev models.Device) {
	s.mu.Lock()
	if i, ok := s.index[dev.ID]; ok {
		s.devices = append(s.devices[:i], s.devices[i+1:]...)
	}
	s.devices = append([]models.Device{dev}, s.devices...)
	s.rebuildIndex()
	if !dev.Status.IsValid() {
		s.logger.Warn().Str("device_id", dev.ID).Str("status", string(dev.Status)).Msg("Device carries unknown status")
	}
	s.mu.Unlock()

	s.logger.Debug().Str("device_id", dev.ID).Msg("New device prepended to collection")
	s.notify(ChangeDevice)
}

// View returns a consistent copy of the current state.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]models.Device, len(s.devices))
	copy(devices, s.devices)
	events := make([]models.Event, len(s.events))
	copy(events, s.events)

	return View{
		Devices:      devices,
		Events:       events,
		Summary:      s.summary,
		Seeded:       s.seeded,
		LastSnapshot: s.lastSnapshot,
	}
}

// Device looks up a single record by id.
func (s *Store) Device(id string) (models.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[id]; ok {
		return s.devices[i], true
	}
	return models.Device{}, false
}

// DeviceCount returns the current collection size.
func (s *Store) DeviceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// EventCount returns the current event log length.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Seeded reports whether any snapshot or init has been applied yet.
func (s *Store) Seeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seeded
}

// LastSnapshot returns the time of the last successful snapshot apply,
// zero if none has happened. The age of this timestamp bounds how stale
// the summary can be relative to stream-driven device changes.
func (s *Store) LastSnapshot() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSnapshot
}

// Watch registers a watcher that receives a change kind after every state
// transition. Sends never block the apply path: a watcher that cannot keep
// up misses intermediate notifications. The returned id unregisters the
// watcher via Unwatch.
func (s *Store) Watch(buffer int) (string, <-chan ChangeKind) {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.New().String()
	ch := make(chan ChangeKind, buffer)
	s.watchers.Set(id, ch)
	return id, ch
}

// Unwatch removes a watcher. The channel is not closed; it simply stops
// receiving notifications.
func (s *Store) Unwatch(id string) {
	s.watchers.Remove(id)
}

func (s *Store) notify(kind ChangeKind) {
	for item := range s.watchers.IterBuffered() {
		select {
		case item.Val <- kind:
		default:
		}
	}
}

// upsert replaces the record matching the device id in place, or prepends
// when the id has not been seen. Caller must hold the write lock.
func (s *Store) upsert(dev models.Device) {
	if i, ok := s.index[dev.ID]; ok {
		s.devices[i] = dev
		return
	}
	s.devices = append([]models.Device{dev}, s.devices...)
	s.rebuildIndex()
}

// rebuildIndex recomputes the id lookup table. Caller must hold the write
// lock.
func (s *Store) rebuildIndex() {
	s.index = make(map[string]int, len(s.devices))
	for i := range s.devices {
		s.index[s.devices[i].ID] = i
	}
}

func (s *Store) warnUnknownStatuses(devices []models.Device) {
	for i := range devices {
		if !devices[i].Status.IsValid() {
			s.logger.Warn().Str("device_id", devices[i].ID).Str("status", string(devices[i].Status)).Msg("Device carries unknown status")
		}
	}
}
