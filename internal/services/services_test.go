package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benmeehan/relief-tracker/internal/feed"
	"github.com/benmeehan/relief-tracker/internal/mocks"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s, err := store.NewMemoryStore(nil, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func createDonation(t *testing.T, s *store.MemoryStore, item string, loc models.LocationField) string {
	t.Helper()
	id, err := s.Create(context.Background(), models.DonationDocument{
		ItemName:  item,
		Quantity:  1,
		Location:  loc,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

// capturePublishes records payloads published to topic with the given retained
// flag. Publishes beyond the buffer are dropped so a publisher never blocks.
func capturePublishes(client *mocks.MockMQTTClient, topic string, retained bool) <-chan []byte {
	published := make(chan []byte, 16)
	client.On("Publish", topic, mock.Anything, retained, mock.Anything).
		Run(func(args mock.Arguments) {
			select {
			case published <- args.Get(3).([]byte):
			default:
			}
		}).
		Return(mocks.NewDoneToken(nil))
	return published
}

// waitFor decodes published payloads into v until match accepts one.
func waitFor[T any](t *testing.T, published <-chan []byte, match func(T) bool) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case payload := <-published:
			var v T
			require.NoError(t, json.Unmarshal(payload, &v))
			if match(v) {
				return v
			}
		case <-timeout:
			t.Fatal("expected publish did not arrive")
		}
	}
}

func newFeed(s store.Source) *feed.Feed {
	return feed.NewFeed(s, zerolog.Nop())
}
