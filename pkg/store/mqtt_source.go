package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MQTTSource is a read-only Source fed by snapshots that a relay publishes to
// an MQTT topic. The broker subscription is held only while at least one
// handler is registered.
type MQTTSource struct {
	client mqtt.MQTTClient
	topic  string
	qos    byte
	logger zerolog.Logger

	subMu      sync.Mutex // guards subscribed; held across broker round trips
	subscribed bool

	mu       sync.Mutex // guards handlers and last; held while delivering
	handlers map[string]SnapshotHandler
	last     *models.CollectionSnapshot
}

// NewMQTTSource creates a source reading snapshots from topic.
func NewMQTTSource(client mqtt.MQTTClient, topic string, qos int, logger zerolog.Logger) *MQTTSource {
	return &MQTTSource{
		client:   client,
		topic:    topic,
		qos:      byte(qos),
		logger:   logger,
		handlers: make(map[string]SnapshotHandler),
	}
}

// Subscribe registers handler. If a snapshot has already been received it is
// delivered immediately; otherwise the first retained message will be.
func (m *MQTTSource) Subscribe(handler SnapshotHandler) (func(), error) {
	if handler == nil {
		return nil, errors.New("subscribe: handler is nil")
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	key := uuid.New().String()
	m.mu.Lock()
	m.handlers[key] = handler
	if m.last != nil {
		handler(*m.last)
	}
	m.mu.Unlock()

	if !m.subscribed {
		token := m.client.Subscribe(m.topic, m.qos, m.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			m.mu.Lock()
			delete(m.handlers, key)
			m.mu.Unlock()
			m.logger.Error().Err(err).Str("topic", m.topic).Msg("Failed to subscribe to snapshot topic")
			return nil, fmt.Errorf("subscribe to %s: %w", m.topic, err)
		}
		m.subscribed = true
		m.logger.Info().Str("topic", m.topic).Msg("Subscribed to snapshot topic")
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key) })
	}, nil
}

func (m *MQTTSource) release(key string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.mu.Lock()
	delete(m.handlers, key)
	remaining := len(m.handlers)
	if remaining == 0 {
		m.last = nil
	}
	m.mu.Unlock()

	if remaining > 0 || !m.subscribed {
		return
	}

	token := m.client.Unsubscribe(m.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		m.logger.Error().Err(err).Str("topic", m.topic).Msg("Failed to unsubscribe from snapshot topic")
	}
	m.subscribed = false
}

// handleMessage decodes a published snapshot and fans it out. Stale
// revisions (redelivered or retained copies) are dropped.
func (m *MQTTSource) handleMessage(_ MQTT.Client, msg MQTT.Message) {
	var snap models.CollectionSnapshot
	if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
		m.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Failed to decode snapshot message")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last != nil && snap.Revision <= m.last.Revision {
		m.logger.Debug().Uint64("revision", snap.Revision).Msg("Dropping stale snapshot")
		return
	}
	m.last = &snap

	for _, handler := range m.handlers {
		handler(snap)
	}
}
