package service_registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/relief-tracker/internal/feed"
	"github.com/benmeehan/relief-tracker/internal/registry"
	"github.com/benmeehan/relief-tracker/internal/services"
	"github.com/benmeehan/relief-tracker/internal/utils"
	"github.com/benmeehan/relief-tracker/pkg/mqtt"
	"github.com/benmeehan/relief-tracker/pkg/s3"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/rs/zerolog"
)

// Service is re-exported for callers that only import the registry.
type Service = registry.Service

// ServiceRegistry manages the lifecycle of the background services.
type ServiceRegistry struct {
	services      map[string]Service // Stores registered services
	serviceKeys   []string           // Maintains order of service registration
	source        store.Source
	feed          *feed.Feed
	mqttClient    mqtt.MQTTClient
	objectStorage s3.ObjectStorageClient
	Logger        zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
// mqttClient and objectStorage may be nil when no enabled service needs them.
func NewServiceRegistry(source store.Source, donations *feed.Feed, mqttClient mqtt.MQTTClient, objectStorage s3.ObjectStorageClient, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:      make(map[string]Service),
		source:        source,
		feed:          donations,
		mqttClient:    mqttClient,
		objectStorage: objectStorage,
		Logger:        logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Names returns the registered service names in start order.
func (sr *ServiceRegistry) Names() []string {
	return append([]string(nil), sr.serviceKeys...)
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

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("start %s: %w", name, err)
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
	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "snapshot_relay",
			enabled: config.Services.SnapshotRelay.Enabled,
			constructor: func() (Service, error) {
				if sr.mqttClient == nil {
					return nil, errors.New("snapshot relay requires an mqtt client")
				}
				return services.NewSnapshotRelayService(
					config.Services.SnapshotRelay.Topic,
					config.Services.SnapshotRelay.QOS,
					sr.source,
					sr.mqttClient,
					sr.Logger.With().Str("service", "snapshot_relay").Logger(),
				), nil
			},
		},
		{
			name:    "tracker",
			enabled: config.Services.Tracker.Enabled,
			constructor: func() (Service, error) {
				if sr.mqttClient == nil {
					return nil, errors.New("tracker requires an mqtt client")
				}
				return services.NewTrackerService(
					config.Services.Tracker.Topic,
					config.Services.Tracker.QOS,
					config.Services.Tracker.EdgePadding,
					sr.feed,
					sr.mqttClient,
					sr.Logger.With().Str("service", "tracker").Logger(),
				), nil
			},
		},
		{
			name:    "metrics",
			enabled: config.Services.Metrics.Enabled,
			constructor: func() (Service, error) {
				if sr.mqttClient == nil {
					return nil, errors.New("metrics requires an mqtt client")
				}
				return services.NewMetricsService(
					config.Services.Metrics.Topic,
					config.Services.Metrics.Interval,
					config.Services.Metrics.QOS,
					config.Services.Metrics.Host,
					sr.feed,
					sr.mqttClient,
					sr.Logger.With().Str("service", "metrics").Logger(),
				)
			},
		},
		{
			name:    "archive",
			enabled: config.Services.Archive.Enabled,
			constructor: func() (Service, error) {
				if sr.objectStorage == nil {
					return nil, errors.New("archive requires an object storage client")
				}
				archive := config.Services.Archive
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := sr.objectStorage.Connect(ctx, archive.Endpoint, archive.AccessKey, archive.SecretKey, archive.UseSSL); err != nil {
					return nil, err
				}
				return services.NewArchiveService(
					archive.Bucket,
					archive.Prefix,
					archive.Interval,
					sr.feed,
					sr.objectStorage,
					sr.Logger.With().Str("service", "archive").Logger(),
				), nil
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
