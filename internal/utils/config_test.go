package utils_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/relief-tracker/internal/constants"
	"github.com/benmeehan/relief-tracker/internal/utils"
	"github.com/benmeehan/relief-tracker/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_DefaultsAndEnvOverlay(t *testing.T) {
	path := writeFile(t, "config.yaml", `
mqtt:
  broker: tcp://localhost:1883
store:
  backend: postgres
operator:
  access_code: from-yaml
services:
  tracker:
    enabled: true
  metrics:
    interval: 15s
`)
	t.Setenv(utils.EnvDatabaseURL, "postgres://relief@localhost/relief")
	t.Setenv(utils.EnvOperatorCode, "from-env")

	config, err := utils.LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "postgres://relief@localhost/relief", config.Store.DatabaseURL)
	assert.Equal(t, "from-env", config.Operator.AccessCode)
	assert.Equal(t, 15*time.Second, config.Services.Metrics.Interval)
	assert.Equal(t, constants.DefaultMarkersTopic, config.Services.Tracker.Topic)
	assert.Equal(t, constants.DefaultEdgePadding, config.Services.Tracker.EdgePadding)
	assert.Equal(t, constants.DefaultSnapshotTopic, config.Services.SnapshotRelay.Topic)
	assert.Equal(t, utils.LocationNone, config.Location.Provider)
	assert.Equal(t, constants.DefaultDashboardPool, config.Dashboard.Workers)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"postgres without url", "store:\n  backend: postgres\n", "requires a database url"},
		{"unknown backend", "store:\n  backend: sqlite\n", `unknown store backend "sqlite"`},
		{"google without key", "location:\n  provider: google\n", "requires a maps api key"},
		{"services without broker", "services:\n  metrics:\n    enabled: true\n", "no broker is configured"},
		{"archive without bucket", "services:\n  archive:\n    enabled: true\n    endpoint: localhost:9000\n", "endpoint and a bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(utils.EnvDatabaseURL, "")
			t.Setenv(utils.EnvMapsAPIKey, "")
			path := writeFile(t, "config.yaml", tt.yaml)

			_, err := utils.LoadConfig(path, file.NewFileService())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, utils.LoadEnv(""))
	assert.NoError(t, utils.LoadEnv(filepath.Join(t.TempDir(), "missing.env")))

	t.Setenv(utils.EnvOperatorCode, "")
	os.Unsetenv(utils.EnvOperatorCode)
	path := writeFile(t, ".env", "OPERATOR_CODE=relief-2024\n")
	require.NoError(t, utils.LoadEnv(path))
	assert.Equal(t, "relief-2024", os.Getenv(utils.EnvOperatorCode))
}

func TestSetsEqual(t *testing.T) {
	a := utils.SliceToSet([]string{"x", "y"})
	assert.True(t, utils.SetsEqual(a, utils.SliceToSet([]string{"y", "x", "x"})))
	assert.False(t, utils.SetsEqual(a, utils.SliceToSet([]string{"x"})))
	assert.False(t, utils.SetsEqual(a, utils.SliceToSet([]string{"x", "z"})))
}

func TestWorkerPool_RunsAllJobsAndSurvivesPanics(t *testing.T) {
	var logs bytes.Buffer
	pool := utils.NewWorkerPool(2, zerolog.New(&logs))
	results := make(chan int, 3)

	pool.Submit(func() { results <- 1 })
	pool.Submit(func() { panic("boom") })
	pool.Submit(func() { results <- 2 })
	pool.Submit(func() { results <- 3 })
	pool.Shutdown()
	close(results)

	sum := 0
	for r := range results {
		sum += r
	}
	assert.Equal(t, 6, sum)
	assert.Contains(t, logs.String(), `"panic":"boom"`)
	assert.Contains(t, logs.String(), `"level":"error"`)
}
