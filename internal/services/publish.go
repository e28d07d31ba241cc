package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/relief-tracker/pkg/mqtt"
	"github.com/rs/zerolog"
)

const publishRetries = 3

// publishWithRetry publishes v as JSON, backing off one more second per
// attempt. It gives up as soon as ctx ends.
func publishWithRetry(ctx context.Context, client mqtt.MQTTClient, topic string, qos int, retained bool, v any, logger zerolog.Logger) error {
	var err error
	for i := 0; i < publishRetries; i++ {
		if err = mqtt.PublishJSON(client, topic, byte(qos), retained, v); err == nil {
			return nil
		}
		logger.Warn().Err(err).Str("topic", topic).Int("retry", i+1).Msg("Retrying publish...")

		timer := time.NewTimer(time.Duration(i+1) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("publish to %s abandoned: %w", topic, errors.Join(err, ctx.Err()))
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed to publish to %s after %d retries: %w", topic, publishRetries, err)
}
