package service_registry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/greenloop/ewaste-monitor/internal/metrics"
	"github.com/greenloop/ewaste-monitor/internal/registry"
	"github.com/greenloop/ewaste-monitor/internal/services"
	"github.com/greenloop/ewaste-monitor/internal/state"
	"github.com/greenloop/ewaste-monitor/internal/utils"
	"github.com/greenloop/ewaste-monitor/pkg/backend"
	"github.com/greenloop/ewaste-monitor/pkg/session"
	"github.com/greenloop/ewaste-monitor/pkg/stream"
)

// ServiceRegistry manages the lifecycle of the monitor's services.
type ServiceRegistry struct {
	services     map[string]registry.Service // Stores registered services
	serviceKeys  []string                    // Maintains order of service registration
	api          backend.API
	session      *session.Session
	store        *state.Store
	metrics      *metrics.Metrics
	streamClient *stream.Client
	Logger       zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
// The stream client is shared with the view API for the connection badge;
// it may be nil when the stream service is disabled.
func NewServiceRegistry(api backend.API, sess *session.Session, store *state.Store,
	m *metrics.Metrics, streamClient *stream.Client, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:     make(map[string]registry.Service),
		api:          api,
		session:      sess,
		store:        store,
		metrics:      m,
		streamClient: streamClient,
		Logger:       logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	// Ordered service definitions with inline constructors. The snapshot
	// service leads so the store seeds from REST even when the stream
	// takes a while to come up.
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "snapshot",
			enabled: config.Services.Snapshot.Enabled,
			constructor: func() (registry.Service, error) {
				return services.NewSnapshotService(
					config.Services.Snapshot.Interval,
					config.Services.Snapshot.Timeout,
					sr.api,
					sr.session,
					sr.store,
					sr.metrics,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "stream",
			enabled: config.Services.Stream.Enabled,
			constructor: func() (registry.Service, error) {
				if sr.streamClient == nil {
					return nil, errors.New("stream service enabled but no stream client configured")
				}
				return services.NewStreamService(sr.streamClient, sr.store, sr.metrics, sr.Logger), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
