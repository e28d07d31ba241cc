package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/benmeehan/relief-tracker/internal/constants"
	"github.com/benmeehan/relief-tracker/pkg/file"
	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMQTT     = "mqtt"
)

// Location providers
const (
	LocationGoogle = "google"
	LocationGPS    = "gps"
	LocationNone   = "none"
)

// Environment variables overlaid on the YAML configuration.
const (
	EnvDatabaseURL      = "DATABASE_URL"
	EnvOperatorCode     = "OPERATOR_CODE"
	EnvMapsAPIKey       = "MAPS_API_KEY"
	EnvArchiveAccessKey = "ARCHIVE_ACCESS_KEY"
	EnvArchiveSecretKey = "ARCHIVE_SECRET_KEY"
)

// Config represents the structure of the configuration file.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`  // zerolog level name, e.g. "info"
		Format string `yaml:"format"` // "console" or "json"
	} `yaml:"log"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID; a random suffix is added per process
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty for plain TCP
	} `yaml:"mqtt"`

	Store struct {
		Backend       string `yaml:"backend"`        // memory, postgres or mqtt
		StateFile     string `yaml:"state_file"`     // File the memory backend persists the collection to
		DatabaseURL   string `yaml:"database_url"`   // Postgres connection string
		SnapshotTopic string `yaml:"snapshot_topic"` // Topic the mqtt backend reads snapshots from
		QOS           int    `yaml:"qos"`            // MQTT QoS level for snapshot subscriptions
	} `yaml:"store"`

	Operator struct {
		AccessCode string `yaml:"access_code"` // Shared operator access code
	} `yaml:"operator"`

	Location struct {
		Provider          string        `yaml:"provider"`        // google, gps or none
		MapsAPIKey        string        `yaml:"maps_api_key"`    // Google maps API Key
		Timeout           time.Duration `yaml:"timeout"`         // Timeout for a single position lookup
		GPSDevicePort     string        `yaml:"gps_device_port"` // UNIX Port where the GPS sensor is mounted
		GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`   // The Baud rate for GPS sensor
	} `yaml:"location"`

	Dashboard struct {
		Workers int `yaml:"workers"` // Worker pool size for asynchronous transitions
	} `yaml:"dashboard"`

	Services struct {
		SnapshotRelay struct {
			Enabled bool   `yaml:"enabled"` // Enable/disable snapshot relay
			Topic   string `yaml:"topic"`   // MQTT topic snapshots are published to (retained)
			QOS     int    `yaml:"qos"`     // MQTT QoS level for snapshot messages
		} `yaml:"snapshot_relay"`

		Tracker struct {
			Enabled     bool   `yaml:"enabled"`      // Enable/disable marker publishing
			Topic       string `yaml:"topic"`        // MQTT topic for marker sets
			QOS         int    `yaml:"qos"`          // MQTT QoS level for marker messages
			EdgePadding int    `yaml:"edge_padding"` // Padding kept around fitted bounds
		} `yaml:"tracker"`

		Metrics struct {
			Enabled  bool          `yaml:"enabled"`  // Enable/disable metrics service
			Topic    string        `yaml:"topic"`    // MQTT topic for pipeline metrics
			Interval time.Duration `yaml:"interval"` // Interval between metrics messages
			QOS      int           `yaml:"qos"`      // MQTT QoS level for metrics messages
			Host     []string      `yaml:"host"`     // Host collectors: cpu, memory, process_memory, goroutines
		} `yaml:"metrics"`

		Archive struct {
			Enabled   bool          `yaml:"enabled"`    // Enable/disable snapshot archiving
			Interval  time.Duration `yaml:"interval"`   // Interval between archive checks
			Endpoint  string        `yaml:"endpoint"`   // S3-compatible endpoint, host:port
			Bucket    string        `yaml:"bucket"`     // Bucket snapshots are written to
			Prefix    string        `yaml:"prefix"`     // Object name prefix
			UseSSL    bool          `yaml:"use_ssl"`    // Use HTTPS towards the endpoint
			AccessKey string        `yaml:"access_key"` // Object storage access key
			SecretKey string        `yaml:"secret_key"` // Object storage secret key
		} `yaml:"archive"`
	} `yaml:"services"`
}

// LoadEnv loads variables from envFile into the process environment. A
// missing file is not an error; variables already set are left untouched.
func LoadEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return nil
}

// LoadConfig loads the YAML configuration from the specified file, overlays
// secrets from the environment and fills in defaults.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	config.applyEnv(os.LookupEnv)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overlay := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	overlay(&c.Store.DatabaseURL, EnvDatabaseURL)
	overlay(&c.Operator.AccessCode, EnvOperatorCode)
	overlay(&c.Location.MapsAPIKey, EnvMapsAPIKey)
	overlay(&c.Services.Archive.AccessKey, EnvArchiveAccessKey)
	overlay(&c.Services.Archive.SecretKey, EnvArchiveSecretKey)
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "relief-tracker"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	if c.Store.SnapshotTopic == "" {
		c.Store.SnapshotTopic = constants.DefaultSnapshotTopic
	}
	if c.Location.Provider == "" {
		c.Location.Provider = LocationNone
	}
	if c.Location.Timeout <= 0 {
		c.Location.Timeout = 10 * time.Second
	}
	if c.Location.GPSDeviceBaudRate == 0 {
		c.Location.GPSDeviceBaudRate = 9600
	}
	if c.Dashboard.Workers <= 0 {
		c.Dashboard.Workers = constants.DefaultDashboardPool
	}
	if c.Services.SnapshotRelay.Topic == "" {
		c.Services.SnapshotRelay.Topic = c.Store.SnapshotTopic
	}
	if c.Services.Tracker.Topic == "" {
		c.Services.Tracker.Topic = constants.DefaultMarkersTopic
	}
	if c.Services.Tracker.EdgePadding <= 0 {
		c.Services.Tracker.EdgePadding = constants.DefaultEdgePadding
	}
	if c.Services.Metrics.Topic == "" {
		c.Services.Metrics.Topic = constants.DefaultMetricsTopic
	}
	if c.Services.Metrics.Interval <= 0 {
		c.Services.Metrics.Interval = constants.DefaultMetricsInterval
	}
	if c.Services.Metrics.Host == nil {
		c.Services.Metrics.Host = []string{"memory", "process_memory", "goroutines"}
	}
	if c.Services.Archive.Interval <= 0 {
		c.Services.Archive.Interval = constants.DefaultArchiveInterval
	}
	if c.Services.Archive.Prefix == "" {
		c.Services.Archive.Prefix = constants.DonationCollection
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store backend %q requires a database url (%s)", StorePostgres, EnvDatabaseURL)
		}
	case StoreMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("store backend %q requires an mqtt broker", StoreMQTT)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Location.Provider {
	case LocationNone:
	case LocationGoogle:
		if c.Location.MapsAPIKey == "" {
			return fmt.Errorf("location provider %q requires a maps api key (%s)", LocationGoogle, EnvMapsAPIKey)
		}
	case LocationGPS:
		if c.Location.GPSDevicePort == "" {
			return fmt.Errorf("location provider %q requires a gps device port", LocationGPS)
		}
	default:
		return fmt.Errorf("unknown location provider %q", c.Location.Provider)
	}

	needsBroker := c.Services.SnapshotRelay.Enabled || c.Services.Tracker.Enabled || c.Services.Metrics.Enabled
	if needsBroker && c.MQTT.Broker == "" {
		return errors.New("mqtt services are enabled but no broker is configured")
	}
	if c.Services.SnapshotRelay.Enabled && c.Store.Backend == StoreMQTT {
		return errors.New("snapshot relay cannot run on the mqtt store backend")
	}
	if c.Services.Archive.Enabled && (c.Services.Archive.Endpoint == "" || c.Services.Archive.Bucket == "") {
		return errors.New("archive service requires an endpoint and a bucket")
	}
	return nil
}
