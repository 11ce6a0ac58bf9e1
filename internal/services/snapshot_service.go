package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/greenloop/ewaste-monitor/internal/metrics"
	"github.com/greenloop/ewaste-monitor/internal/models"
	"github.com/greenloop/ewaste-monitor/internal/state"
	"github.com/greenloop/ewaste-monitor/pkg/backend"
)

// SessionRenewer re-authenticates against the backend after a credential
// rejection.
type SessionRenewer interface {
	Authenticate(ctx context.Context) error
}

// SnapshotService periodically fetches the aggregate summary and the full
// device collection and applies them to the store as one unit. A cycle
// that fails in either fetch leaves the previous state untouched.
type SnapshotService struct {
	Interval time.Duration
	Timeout  time.Duration
	Backend  backend.API
	Session  SessionRenewer
	Store    *state.Store
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSnapshotService initializes a new SnapshotService.
func NewSnapshotService(interval, timeout time.Duration, api backend.API, session SessionRenewer,
	store *state.Store, m *metrics.Metrics, logger zerolog.Logger) *SnapshotService {

	return &SnapshotService{
		Interval: interval,
		Timeout:  timeout,
		Backend:  api,
		Session:  session,
		Store:    store,
		Metrics:  m,
		Logger:   logger,
	}
}

// Start launches the refresh loop in a separate goroutine. The first
// cycle runs immediately so the store seeds without waiting a full
// interval.
func (s *SnapshotService) Start() error {
	if s.ctx != nil {
		s.Logger.Warn().Msg("SnapshotService is already running")
		return errors.New("snapshot service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runRefreshLoop()
	}()

	s.Logger.Info().Dur("interval", s.Interval).Msg("SnapshotService started successfully")
	return nil
}

// Stop gracefully stops the snapshot service.
func (s *SnapshotService) Stop() error {
	if s.ctx == nil {
		s.Logger.Warn().Msg("SnapshotService is not running")
		return errors.New("snapshot service is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.Logger.Info().Msg("SnapshotService stopped successfully")
	return nil
}

// runRefreshLoop drives refresh cycles at the configured interval.
func (s *SnapshotService) runRefreshLoop() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.refresh()

	for {
		select {
		case <-ticker.C:
			s.refresh()
		case <-s.ctx.Done():
			s.Logger.Info().Msg("SnapshotService stopping gracefully")
			return
		}
	}
}

// refresh runs one cycle: fetch both feeds, renew the session once if the
// backend rejected the token, and apply the result wholesale on success.
func (s *SnapshotService) refresh() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(s.ctx, s.Timeout)
	defer cancel()

	devices, summary, err := s.fetch(ctx)
	if err != nil && errors.Is(err, backend.ErrUnauthorized) {
		s.Logger.Warn().Err(err).Msg("Snapshot fetch rejected, renewing session")
		s.Metrics.IncSessionRenewal()
		if authErr := s.Session.Authenticate(ctx); authErr != nil {
			err = fmt.Errorf("session renewal failed: %w", authErr)
		} else {
			devices, summary, err = s.fetch(ctx)
		}
	}
	if err != nil {
		result := metrics.ResultError
		if errors.Is(err, backend.ErrUnauthorized) {
			result = metrics.ResultUnauthorized
		}
		s.Metrics.ObserveSnapshotRefresh(result, time.Since(start))
		s.Logger.Error().Err(err).Msg("Snapshot refresh failed, keeping last good state")
		return
	}

	s.Store.ApplySnapshot(devices, summary)
	s.Metrics.ObserveSnapshotRefresh(metrics.ResultOK, time.Since(start))
	s.Logger.Debug().Int("devices", len(devices)).Dur("elapsed", time.Since(start)).Msg("Snapshot refresh applied")
}

// fetch retrieves the summary and the device collection concurrently.
// Either failure cancels the sibling and fails the whole cycle.
func (s *SnapshotService) fetch(ctx context.Context) ([]models.Device, *models.Summary, error) {
	var (
		devices []models.Device
		summary *models.Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := s.Backend.Summary(gctx)
		if err != nil {
			return fmt.Errorf("summary fetch failed: %w", err)
		}
		summary = result
		return nil
	})
	g.Go(func() error {
		result, err := s.Backend.Devices(gctx, "")
		if err != nil {
			return fmt.Errorf("device fetch failed: %w", err)
		}
		devices = result
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return devices, summary, nil
}
