package service_registry_test

import (
	"errors"
	"testing"

	"github.com/benmeehan/relief-tracker/internal/feed"
	"github.com/benmeehan/relief-tracker/internal/mocks"
	"github.com/benmeehan/relief-tracker/internal/service_registry"
	"github.com/benmeehan/relief-tracker/internal/utils"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (r *recordingService) Start() error {
	if r.startErr != nil {
		return r.startErr
	}
	*r.log = append(*r.log, "start "+r.name)
	return nil
}

func (r *recordingService) Stop() error {
	*r.log = append(*r.log, "stop "+r.name)
	return r.stopErr
}

func newRegistry(t *testing.T) *service_registry.ServiceRegistry {
	t.Helper()
	s, err := store.NewMemoryStore(nil, zerolog.Nop())
	require.NoError(t, err)
	return service_registry.NewServiceRegistry(s, feed.NewFeed(s, zerolog.Nop()), nil, nil, zerolog.Nop())
}

func TestServiceRegistry_StartInOrderStopInReverse(t *testing.T) {
	var log []string
	sr := newRegistry(t)
	sr.RegisterService("a", &recordingService{name: "a", log: &log})
	sr.RegisterService("b", &recordingService{name: "b", log: &log})
	sr.RegisterService("a", &recordingService{name: "dup", log: &log})

	assert.Equal(t, []string{"a", "b"}, sr.Names())
	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestServiceRegistry_RollsBackOnStartFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	sr := newRegistry(t)
	sr.RegisterService("a", &recordingService{name: "a", log: &log})
	sr.RegisterService("b", &recordingService{name: "b", log: &log})
	sr.RegisterService("c", &recordingService{name: "c", log: &log, startErr: boom})

	err := sr.StartServices()

	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "start c")
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestServiceRegistry_StopJoinsErrors(t *testing.T) {
	var log []string
	first, second := errors.New("first"), errors.New("second")
	sr := newRegistry(t)
	sr.RegisterService("a", &recordingService{name: "a", log: &log, stopErr: first})
	sr.RegisterService("b", &recordingService{name: "b", log: &log, stopErr: second})

	err := sr.StopServices()

	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, []string{"stop b", "stop a"}, log)
}

func TestRegisterServices_NothingEnabled(t *testing.T) {
	sr := newRegistry(t)
	require.NoError(t, sr.RegisterServices(&utils.Config{}))
	assert.Empty(t, sr.Names())
}

func TestRegisterServices_TrackerNeedsBroker(t *testing.T) {
	var config utils.Config
	config.Services.Tracker.Enabled = true

	sr := newRegistry(t)
	assert.Error(t, sr.RegisterServices(&config))
	assert.Empty(t, sr.Names())
}

func TestRegisterServices_OrderFollowsDefinition(t *testing.T) {
	s, err := store.NewMemoryStore(nil, zerolog.Nop())
	require.NoError(t, err)

	var config utils.Config
	config.Services.Archive.Enabled = true
	config.Services.Archive.Endpoint = "localhost:9000"
	config.Services.Archive.Bucket = "donations"
	config.Services.Tracker.Enabled = true
	config.Services.Tracker.Topic = "relief/donations/markers"
	config.Services.SnapshotRelay.Enabled = true
	config.Services.SnapshotRelay.Topic = "relief/donations/snapshot"

	mockStorage := new(mocks.MockObjectStorage)
	mockStorage.On("Connect", mock.Anything, "localhost:9000", "", "", false).Return(nil)

	sr := service_registry.NewServiceRegistry(s, feed.NewFeed(s, zerolog.Nop()), new(mocks.MockMQTTClient), mockStorage, zerolog.Nop())
	require.NoError(t, sr.RegisterServices(&config))

	assert.Equal(t, []string{"snapshot_relay", "tracker", "archive"}, sr.Names())
	mockStorage.AssertExpectations(t)
}

func TestRegisterServices_ArchiveConnectFailure(t *testing.T) {
	var config utils.Config
	config.Services.Archive.Enabled = true

	mockStorage := new(mocks.MockObjectStorage)
	mockStorage.On("Connect", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("unreachable"))

	s, err := store.NewMemoryStore(nil, zerolog.Nop())
	require.NoError(t, err)
	sr := service_registry.NewServiceRegistry(s, feed.NewFeed(s, zerolog.Nop()), nil, mockStorage, zerolog.Nop())

	assert.ErrorContains(t, sr.RegisterServices(&config), "unreachable")
}
