package services

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/greenloop/ewaste-monitor/internal/metrics"
	"github.com/greenloop/ewaste-monitor/internal/models"
	"github.com/greenloop/ewaste-monitor/internal/state"
	"github.com/greenloop/ewaste-monitor/pkg/stream"
)

// StreamService owns the live event subscription. It routes decoded
// stream messages into the store and keeps the connection metrics
// current; the underlying client handles reconnecting on its own.
type StreamService struct {
	Client  *stream.Client
	Store   *state.Store
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamService initializes a new StreamService.
func NewStreamService(client *stream.Client, store *state.Store, m *metrics.Metrics, logger zerolog.Logger) *StreamService {
	return &StreamService{
		Client:  client,
		Store:   store,
		Metrics: m,
		Logger:  logger,
	}
}

// Start registers the message handlers and launches the subscription in a
// separate goroutine.
func (s *StreamService) Start() error {
	if s.ctx != nil {
		s.Logger.Warn().Msg("StreamService is already running")
		return errors.New("stream service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.Client.OnInit(s.handleInit)
	s.Client.OnEvent(s.handleEvent)
	s.Client.OnNewDevice(s.handleNewDevice)
	s.Client.OnDecodeError(s.handleDecodeError)
	s.Client.OnStatusChange(s.handleStatusChange)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Client.Run(s.ctx)
	}()

	s.Logger.Info().Msg("StreamService started successfully")
	return nil
}

// Stop gracefully stops the stream service, closing the subscription.
func (s *StreamService) Stop() error {
	if s.ctx == nil {
		s.Logger.Warn().Msg("StreamService is not running")
		return errors.New("stream service is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.Logger.Info().Msg("StreamService stopped successfully")
	return nil
}

// Status exposes the connection phase for the readiness probe and the
// connection badge.
func (s *StreamService) Status() stream.Status {
	return s.Client.Status()
}

// handleInit resynchronizes the collection and the event log from the
// full state the backend pushes on every (re)connect.
func (s *StreamService) handleInit(devices []models.Device, events []models.Event) {
	s.Store.ApplyInit(devices, events)
	s.Metrics.IncStreamMessage(string(models.MessageInit))
	s.Logger.Info().Int("devices", len(devices)).Int("events", len(events)).Msg("Stream state resynchronized")
}

// handleEvent applies one telemetry event and, when present, the updated
// device record that rode along with it.
func (s *StreamService) handleEvent(ev models.Event, dev *models.Device) {
	s.Store.ApplyEvent(ev, dev)
	s.Metrics.IncStreamMessage(string(models.MessageIoTEvent))
	s.Logger.Debug().Str("device_id", ev.DeviceID).Str("kind", ev.Kind).Msg("Applied device event")
}

// handleNewDevice adds a freshly registered device to the collection.
func (s *StreamService) handleNewDevice(dev models.Device) {
	s.Store.ApplyNewDevice(dev)
	s.Metrics.IncStreamMessage(string(models.MessageNewDevice))
	s.Logger.Info().Str("device_id", dev.ID).Str("type", dev.Type).Msg("Device registered")
}

// handleDecodeError counts messages the client dropped as undecodable;
// the client already logged the cause.
func (s *StreamService) handleDecodeError(err error) {
	s.Metrics.IncStreamDropped()
}

// handleStatusChange tracks connection phase transitions.
func (s *StreamService) handleStatusChange(status stream.Status) {
	if status == stream.StatusReconnecting {
		s.Metrics.IncStreamReconnect()
	}
	s.Logger.Info().Str("status", status.String()).Msg("Stream connection status changed")
}
