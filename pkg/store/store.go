package store

import (
	"context"
	"errors"

	"github.com/benmeehan/relief-tracker/internal/models"
)

// ErrPreconditionFailed is returned when a conditional update finds a different stored status.
var ErrPreconditionFailed = errors.New("store: precondition failed")

// SnapshotHandler receives complete collection snapshots. Handlers run on the
// store's delivery path and must not block or write back to the store.
type SnapshotHandler func(models.CollectionSnapshot)

// Source is the read side of a record store: a push subscription that
// delivers the current snapshot immediately and again after every write.
type Source interface {
	Subscribe(handler SnapshotHandler) (unsubscribe func(), err error)
}

// DonationStore is the persisted donation collection.
type DonationStore interface {
	Source
	Create(ctx context.Context, doc models.DonationDocument) (string, error)
	Update(ctx context.Context, id string, update models.DonationUpdate) error
	Get(ctx context.Context, id string) (models.DonationDocument, error)
}

// Persister saves and restores the whole collection for stores that keep it in memory.
type Persister interface {
	Load() ([]models.DonationDocument, error)
	Save(docs []models.DonationDocument) error
}
