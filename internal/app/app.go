package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/benmeehan/relief-tracker/internal/feed"
	"github.com/benmeehan/relief-tracker/internal/intake"
	"github.com/benmeehan/relief-tracker/internal/lifecycle"
	"github.com/benmeehan/relief-tracker/internal/state_managers"
	"github.com/benmeehan/relief-tracker/internal/utils"
	"github.com/benmeehan/relief-tracker/pkg/file"
	"github.com/benmeehan/relief-tracker/pkg/location"
	"github.com/benmeehan/relief-tracker/pkg/mqtt"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrReadOnly is returned for writes on a deployment that only follows snapshots.
var ErrReadOnly = errors.New("donation store is read-only on this deployment")

// App wires the donation store, feed and write paths from configuration.
type App struct {
	Config *utils.Config
	Logger zerolog.Logger

	Source  store.Source
	Store   store.DonationStore // nil on the mqtt backend
	Feed    *feed.Feed
	Machine *lifecycle.Machine // nil when Store is nil
	Intake  *intake.Service    // nil when Store is nil
	MQTT    mqtt.MQTTClient    // nil when no broker is configured

	closers []func()
}

// NewLogger builds the process logger from the log settings.
func NewLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// LoadConfig reads the env file and the YAML configuration.
func LoadConfig(configPath, envFile string) (*utils.Config, error) {
	if err := utils.LoadEnv(envFile); err != nil {
		return nil, err
	}
	return utils.LoadConfig(configPath, file.NewFileService())
}

// New connects everything the configuration asks for.
func New(ctx context.Context, config *utils.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: config, Logger: logger}
	fileClient := file.NewFileService()

	if config.MQTT.Broker != "" {
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		logger.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		mqttService := mqtt.NewMqttService(fileClient)
		if err := mqttService.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			return nil, fmt.Errorf("initialize mqtt connection: %w", err)
		}
		a.MQTT = mqttService
		a.closers = append(a.closers, func() { mqttService.Disconnect(250) })
	}

	storeLogger := logger.With().Str("component", "store").Logger()
	switch config.Store.Backend {
	case utils.StoreMemory:
		var persister store.Persister
		if config.Store.StateFile != "" {
			persister = state_managers.NewDonationStateManager(config.Store.StateFile, fileClient, storeLogger)
		}
		memory, err := store.NewMemoryStore(persister, storeLogger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store, a.Source = memory, memory
	case utils.StorePostgres:
		pg, err := store.NewPostgresStore(ctx, config.Store.DatabaseURL, storeLogger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store, a.Source = pg, pg
		a.closers = append(a.closers, pg.Close)
	case utils.StoreMQTT:
		if a.MQTT == nil {
			a.Close()
			return nil, errors.New("mqtt store backend requires a broker")
		}
		a.Source = store.NewMQTTSource(a.MQTT, config.Store.SnapshotTopic, config.Store.QOS, storeLogger)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown store backend %q", config.Store.Backend)
	}

	a.Feed = feed.NewFeed(a.Source, logger.With().Str("component", "feed").Logger())

	if a.Store != nil {
		locator, err := NewLocator(config, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Machine = lifecycle.NewMachine(a.Store, logger.With().Str("component", "lifecycle").Logger())
		a.Intake = intake.NewService(a.Store, locator, logger.With().Str("component", "intake").Logger())
	}

	return a, nil
}

// NewLocator builds the configured device position provider.
func NewLocator(config *utils.Config, logger zerolog.Logger) (location.Provider, error) {
	switch config.Location.Provider {
	case utils.LocationGoogle:
		return location.NewGoogleGeolocationProvider(config.Location.MapsAPIKey, config.Location.Timeout, logger)
	case utils.LocationGPS:
		return location.NewDeviceSensorProvider(config.Location.GPSDevicePort, config.Location.GPSDeviceBaudRate), nil
	case utils.LocationNone, "":
		return location.NoneProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown location provider %q", config.Location.Provider)
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
