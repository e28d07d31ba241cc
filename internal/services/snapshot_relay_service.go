package services

import (
	"context"
	"errors"
	"sync"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/mqtt"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/rs/zerolog"
)

// SnapshotRelayService republishes every store snapshot, retained, on an MQTT
// topic so remote trackers can follow the collection through store.MQTTSource.
// A slow broker only ever delays the latest snapshot; older pending ones are
// replaced.
type SnapshotRelayService struct {
	pubTopic   string
	qos        int
	source     store.Source
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	mu          sync.Mutex
	pending     *models.CollectionSnapshot
	notify      chan struct{}
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSnapshotRelayService creates a relay from source to pubTopic.
func NewSnapshotRelayService(pubTopic string, qos int, source store.Source, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *SnapshotRelayService {
	return &SnapshotRelayService{
		pubTopic:   pubTopic,
		qos:        qos,
		source:     source,
		mqttClient: mqttClient,
		logger:     logger,
		notify:     make(chan struct{}, 1),
	}
}

// Start subscribes to the store and begins publishing.
func (s *SnapshotRelayService) Start() error {
	if s.ctx != nil {
		s.logger.Warn().Msg("SnapshotRelayService is already running")
		return errors.New("snapshot relay service is already running")
	}

	s.logger.Info().Msg("Starting SnapshotRelayService...")
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.publishLoop()

	unsubscribe, err := s.source.Subscribe(s.enqueue)
	if err != nil {
		s.cancel()
		s.wg.Wait()
		s.ctx = nil
		s.logger.Error().Err(err).Msg("Failed to subscribe to donation store")
		return err
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.logger.Info().Str("topic", s.pubTopic).Msg("SnapshotRelayService started successfully")
	return nil
}

// enqueue runs on the store delivery path and must not block.
func (s *SnapshotRelayService) enqueue(snap models.CollectionSnapshot) {
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *SnapshotRelayService) publishLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.notify:
		}

		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		s.mu.Unlock()
		if snap == nil {
			continue
		}

		if err := publishWithRetry(s.ctx, s.mqttClient, s.pubTopic, s.qos, true, snap, s.logger); err != nil {
			s.logger.Error().Err(err).Uint64("revision", snap.Revision).Msg("Failed to relay snapshot")
			continue
		}
		s.logger.Debug().Uint64("revision", snap.Revision).Int("documents", len(snap.Documents)).Msg("Snapshot relayed")
	}
}

// Stop releases the store subscription and waits for an in-progress publish.
func (s *SnapshotRelayService) Stop() error {
	if s.ctx == nil {
		s.logger.Warn().Msg("SnapshotRelayService is not running")
		return errors.New("snapshot relay service is not running")
	}

	s.logger.Info().Msg("Stopping SnapshotRelayService...")
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("SnapshotRelayService stopped successfully")
	return nil
}
