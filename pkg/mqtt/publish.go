package mqtt

import (
	"encoding/json"
	"fmt"
)

// PublishJSON serialises v and publishes it, waiting for the broker to accept it.
func PublishJSON(client MQTTClient, topic string, qos byte, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", topic, err)
	}

	token := client.Publish(topic, qos, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
