package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/greenloop/ewaste-monitor/internal/httpapi"
	"github.com/greenloop/ewaste-monitor/internal/metrics"
	"github.com/greenloop/ewaste-monitor/internal/models"
	"github.com/greenloop/ewaste-monitor/internal/service_registry"
	"github.com/greenloop/ewaste-monitor/internal/state"
	"github.com/greenloop/ewaste-monitor/internal/utils"
	"github.com/greenloop/ewaste-monitor/pkg/backend"
	"github.com/greenloop/ewaste-monitor/pkg/file"
	"github.com/greenloop/ewaste-monitor/pkg/session"
	"github.com/greenloop/ewaste-monitor/pkg/stream"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Bootstrap logger; rebuilt once the configured level is known.
	logger := httpapi.NewLogger("info")

	// Load configuration from file, with environment overrides
	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger = httpapi.NewLogger(config.Logging.Level)

	// Tag every log line with a unique instance ID
	instanceID := "monitor-" + uuid.New().String()
	logger = logger.With().Str("instance_id", instanceID).Logger()
	logger.Info().Str("backend", config.Backend.URL).Msg("Starting e-waste monitor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The session and the REST client reference each other: the client
	// draws its bearer token from the session, the session logs in
	// through the client.
	sess := session.New(logger)
	api := backend.NewClient(config.Backend.URL, config.Backend.Timeout, sess)
	sess.SetAuthenticator(func(ctx context.Context) (*models.AuthResponse, error) {
		return api.Login(ctx, config.Backend.Username, config.Backend.Password)
	})

	if err := sess.Authenticate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Initial backend login failed")
	}

	store := state.NewStore(logger)

	m := metrics.New()
	m.RegisterSnapshotAge(func() float64 {
		last := store.LastSnapshot()
		if last.IsZero() {
			return 0
		}
		return time.Since(last).Seconds()
	})

	// Keep the state gauges current from store change notifications.
	_, changes := store.Watch(8)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				m.SetDevicesTracked(store.DeviceCount())
				m.SetEventLogSize(store.EventCount())
			}
		}
	}()

	// Initialize the shared stream connection
	var streamClient *stream.Client
	if config.Services.Stream.Enabled {
		streamClient, err = stream.NewClient(config.Stream.URL, config.Stream.ReconnectDelay, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize stream client")
		}
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(api, sess, store, m, streamClient, logger)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	var statusFn httpapi.StreamStatusFunc
	if streamClient != nil {
		statusFn = func() string { return streamClient.Status().String() }
	}

	handler := httpapi.NewHandler(logger, store, api, m, statusFn)
	srv := &http.Server{
		Addr:              config.HTTP.Addr,
		Handler:           handler.Router(),
		ReadTimeout:       config.HTTP.ReadTimeout,
		WriteTimeout:      config.HTTP.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", config.HTTP.Addr).Msg("View API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Handle graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Service shutdown reported errors")
	}
	logger.Info().Msg("Shutdown complete")
}
