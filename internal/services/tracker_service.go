package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/relief-tracker/internal/feed"
	"github.com/benmeehan/relief-tracker/internal/geo"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/mqtt"
	"github.com/rs/zerolog"
)

// TrackerService follows the donation feed and publishes the marker set for
// map clients on every change.
type TrackerService struct {
	pubTopic   string
	qos        int
	feed       *feed.Feed
	viewport   *geo.ViewportTracker
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTrackerService creates a TrackerService keeping edgePadding points around fitted bounds.
func NewTrackerService(pubTopic string, qos, edgePadding int, donations *feed.Feed, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *TrackerService {
	return &TrackerService{
		pubTopic:   pubTopic,
		qos:        qos,
		feed:       donations,
		viewport:   geo.NewViewportTracker(edgePadding),
		mqttClient: mqttClient,
		logger:     logger,
	}
}

// Start opens a feed subscription and begins publishing marker sets.
func (t *TrackerService) Start() error {
	if t.ctx != nil {
		t.logger.Warn().Msg("TrackerService is already running")
		return errors.New("tracker service is already running")
	}

	t.logger.Info().Msg("Starting TrackerService...")
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := t.feed.Open(ctx)
	if err != nil {
		cancel()
		t.logger.Error().Err(err).Msg("Failed to open donation feed")
		return fmt.Errorf("tracker: %w", err)
	}
	t.ctx, t.cancel = ctx, cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer sub.Close()
		for snap := range sub.Snapshots(ctx) {
			t.publish(snap)
		}
	}()

	t.logger.Info().Str("topic", t.pubTopic).Msg("TrackerService started successfully")
	return nil
}

// MarkerSet projects snap and refits the viewport when marker membership changed.
func (t *TrackerService) MarkerSet(snap models.Snapshot) models.MarkerSet {
	markers := geo.BuildMarkers(snap.Records, t.logger)
	vp, refit := t.viewport.Fit(markers)
	return models.MarkerSet{
		Revision: snap.Revision,
		Markers:  markers,
		Viewport: vp,
		Refit:    refit,
	}
}

func (t *TrackerService) publish(snap models.Snapshot) {
	set := t.MarkerSet(snap)
	if err := publishWithRetry(t.ctx, t.mqttClient, t.pubTopic, t.qos, true, set, t.logger); err != nil {
		t.logger.Error().Err(err).Uint64("revision", snap.Revision).Msg("Failed to publish markers")
		return
	}
	t.logger.Debug().
		Uint64("revision", set.Revision).
		Int("markers", len(set.Markers)).
		Bool("refit", set.Refit).
		Msg("Markers published")
}

// Stop closes the feed subscription.
func (t *TrackerService) Stop() error {
	if t.ctx == nil {
		t.logger.Warn().Msg("TrackerService is not running")
		return errors.New("tracker service is not running")
	}

	t.logger.Info().Msg("Stopping TrackerService...")
	t.cancel()
	t.wg.Wait()
	t.logger.Info().Msg("TrackerService stopped successfully")
	return nil
}
