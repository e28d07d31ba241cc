package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// MemoryStore is an in-process DonationStore. Writes are serialised and every
// successful write is followed by exactly one snapshot delivery per subscriber,
// in revision order.
type MemoryStore struct {
	docs        cmap.ConcurrentMap[string, models.DonationDocument]
	subscribers cmap.ConcurrentMap[string, SnapshotHandler]
	persister   Persister
	logger      zerolog.Logger
	now         func() time.Time

	// writeMu guards mutation and the revision counter. deliverMu is taken
	// before writeMu is released so deliveries leave in write order.
	writeMu   sync.Mutex
	deliverMu sync.Mutex
	revision  uint64
}

// NewMemoryStore creates a MemoryStore, restoring the collection from persister when one is given.
func NewMemoryStore(persister Persister, logger zerolog.Logger) (*MemoryStore, error) {
	s := &MemoryStore{
		docs:        cmap.New[models.DonationDocument](),
		subscribers: cmap.New[SnapshotHandler](),
		persister:   persister,
		logger:      logger,
		now:         time.Now,
	}
	// Start from the wall clock so revisions keep increasing across restarts,
	// which retained snapshots from an earlier run rely on.
	s.revision = uint64(s.now().UnixNano())

	if persister != nil {
		docs, err := persister.Load()
		if err != nil {
			return nil, fmt.Errorf("restore donations: %w", err)
		}
		for _, doc := range docs {
			s.docs.Set(doc.ID, doc)
		}
		logger.Info().Int("count", len(docs)).Msg("Restored donation collection")
	}

	return s, nil
}

// Create stores a new document under a fresh id.
func (s *MemoryStore) Create(ctx context.Context, doc models.DonationDocument) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.writeMu.Lock()
	doc.ID = uuid.New().String()
	s.docs.Set(doc.ID, doc)
	if err := s.persist(); err != nil {
		s.docs.Remove(doc.ID)
		s.writeMu.Unlock()
		return "", fmt.Errorf("create donation: %w", err)
	}
	s.commitAndDeliver()

	s.logger.Debug().Str("id", doc.ID).Str("item", doc.ItemName).Msg("Donation created")
	return doc.ID, nil
}

// Update writes the status of one document, honouring the IfStatus precondition.
func (s *MemoryStore) Update(ctx context.Context, id string, update models.DonationUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	doc, ok := s.docs.Get(id)
	if !ok {
		s.writeMu.Unlock()
		return fmt.Errorf("update donation %s: %w", id, models.ErrNotFound)
	}
	if update.IfStatus != "" && doc.Status != update.IfStatus {
		s.writeMu.Unlock()
		return fmt.Errorf("update donation %s: stored %q, expected %q: %w", id, doc.Status, update.IfStatus, ErrPreconditionFailed)
	}

	prev := doc
	doc.Status = update.Status
	s.docs.Set(id, doc)
	if err := s.persist(); err != nil {
		s.docs.Set(id, prev)
		s.writeMu.Unlock()
		return fmt.Errorf("update donation %s: %w", id, err)
	}
	s.commitAndDeliver()

	s.logger.Debug().Str("id", id).Str("status", string(update.Status)).Msg("Donation updated")
	return nil
}

// Get returns one document.
func (s *MemoryStore) Get(ctx context.Context, id string) (models.DonationDocument, error) {
	if err := ctx.Err(); err != nil {
		return models.DonationDocument{}, err
	}
	doc, ok := s.docs.Get(id)
	if !ok {
		return models.DonationDocument{}, fmt.Errorf("get donation %s: %w", id, models.ErrNotFound)
	}
	return doc, nil
}

// Subscribe registers handler and delivers the current snapshot to it before returning.
func (s *MemoryStore) Subscribe(handler SnapshotHandler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe: handler is nil")
	}

	key := uuid.New().String()

	s.writeMu.Lock()
	s.subscribers.Set(key, handler)
	snap := s.snapshotLocked()
	s.deliverMu.Lock()
	s.writeMu.Unlock()
	handler(snap)
	s.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subscribers.Remove(key)
		})
	}, nil
}

// SubscriberCount reports the number of active subscriptions.
func (s *MemoryStore) SubscriberCount() int {
	return s.subscribers.Count()
}

// commitAndDeliver must be called with writeMu held; it releases it.
func (s *MemoryStore) commitAndDeliver() {
	s.revision++
	snap := s.snapshotLocked()
	s.deliverMu.Lock()
	s.writeMu.Unlock()
	defer s.deliverMu.Unlock()

	for _, handler := range s.subscribers.Items() {
		handler(snap)
	}
}

func (s *MemoryStore) snapshotLocked() models.CollectionSnapshot {
	return models.CollectionSnapshot{
		Revision:  s.revision,
		Documents: s.sortedDocs(),
		TakenAt:   s.now(),
	}
}

func (s *MemoryStore) sortedDocs() []models.DonationDocument {
	docs := make([]models.DonationDocument, 0, s.docs.Count())
	for _, doc := range s.docs.Items() {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs
}

func (s *MemoryStore) persist() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Save(s.sortedDocs())
}
