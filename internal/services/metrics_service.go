package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/relief-tracker/internal/feed"
	"github.com/benmeehan/relief-tracker/internal/geo"
	"github.com/benmeehan/relief-tracker/internal/metrics_collectors"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/internal/utils"
	"github.com/benmeehan/relief-tracker/pkg/mqtt"
	"github.com/rs/zerolog"
)

// MetricsService periodically publishes donation pipeline counts together
// with host figures over MQTT.
type MetricsService struct {
	pubTopic   string
	interval   time.Duration
	timeout    time.Duration
	qos        int
	feed       *feed.Feed
	collectors []metrics_collectors.MetricCollector
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger
	workerPool *utils.WorkerPool

	sub    *feed.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMetricsService initializes and returns a new instance of MetricsService.
func NewMetricsService(
	pubTopic string,
	interval time.Duration,
	qos int,
	hostCollectors []string,
	donations *feed.Feed,
	mqttClient mqtt.MQTTClient,
	logger zerolog.Logger,
) (*MetricsService, error) {
	collectors, err := metrics_collectors.NewDefaultRegistry(logger).Select(hostCollectors)
	if err != nil {
		return nil, err
	}

	timeout := interval / 2
	if timeout <= 0 || timeout > 10*time.Second {
		timeout = 10 * time.Second
	}

	return &MetricsService{
		pubTopic:   pubTopic,
		interval:   interval,
		timeout:    timeout,
		qos:        qos,
		feed:       donations,
		collectors: collectors,
		mqttClient: mqttClient,
		logger:     logger,
	}, nil
}

// Start initiates periodic metrics collection and publishing.
func (m *MetricsService) Start() error {
	if m.ctx != nil {
		m.logger.Warn().Msg("MetricsService is already running")
		return errors.New("metrics service is already running")
	}

	m.logger.Info().Msg("Starting MetricsService...")
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := m.feed.Open(ctx)
	if err != nil {
		cancel()
		m.logger.Error().Err(err).Msg("Failed to open donation feed")
		return fmt.Errorf("metrics: %w", err)
	}
	m.sub, m.ctx, m.cancel = sub, ctx, cancel
	m.workerPool = utils.NewWorkerPool(max(len(m.collectors), 1), m.logger)

	m.wg.Add(1)
	go m.runMetricsCollectionLoop()

	m.logger.Info().Str("topic", m.pubTopic).Msg("MetricsService started successfully")
	return nil
}

// runMetricsCollectionLoop runs the main metrics collection and publishing loop.
func (m *MetricsService) runMetricsCollectionLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap, ok := m.sub.Current()
			if !ok {
				m.logger.Debug().Msg("No donation snapshot yet, skipping metrics")
				continue
			}
			metrics := PipelineMetrics(snap)
			metrics.Host = m.collectHostMetrics()

			if err := publishWithRetry(m.ctx, m.mqttClient, m.pubTopic, m.qos, false, metrics, m.logger); err != nil {
				m.logger.Error().Err(err).Msg("Failed to publish metrics")
			}
		case <-m.ctx.Done():
			m.logger.Info().Msg("Stopping metrics collection")
			return
		}
	}
}

// PipelineMetrics counts the records of snap per status and how many of them
// cannot be placed on the map.
func PipelineMetrics(snap models.Snapshot) models.PipelineMetrics {
	metrics := models.PipelineMetrics{
		Timestamp: time.Now().UTC(),
		Revision:  snap.Revision,
		Total:     len(snap.Records),
		ByStatus: map[models.Status]int{
			models.StatusPending:   0,
			models.StatusInTransit: 0,
			models.StatusDelivered: 0,
		},
	}
	for _, rec := range snap.Records {
		metrics.ByStatus[rec.Status]++
		if _, ok := geo.BuildMarker(rec); !ok {
			metrics.Unmapped++
		}
	}
	return metrics
}

// collectHostMetrics runs the configured collectors concurrently.
func (m *MetricsService) collectHostMetrics() map[string]models.Metric {
	if len(m.collectors) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	host := make(map[string]models.Metric, len(m.collectors))
	var (
		wg           sync.WaitGroup
		metricsMutex sync.Mutex
	)
	for _, collector := range m.collectors {
		wg.Add(1)
		m.workerPool.Submit(func() {
			defer wg.Done()
			value := collector.Collect(ctx)
			if value == nil {
				return
			}

			metricsMutex.Lock()
			defer metricsMutex.Unlock()
			host[collector.Name()] = models.Metric{Value: value, Unit: collector.Unit()}
		})
	}
	wg.Wait()
	return host
}

// Stop gracefully stops the metrics service.
func (m *MetricsService) Stop() error {
	if m.ctx == nil {
		m.logger.Warn().Msg("MetricsService is not running")
		return errors.New("metrics service is not running")
	}

	m.logger.Info().Msg("Stopping MetricsService...")
	m.cancel()
	m.wg.Wait()
	m.sub.Close()
	m.workerPool.Shutdown()
	m.logger.Info().Msg("MetricsService stopped successfully")
	return nil
}
