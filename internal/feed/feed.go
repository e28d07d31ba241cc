package feed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/benmeehan/relief-tracker/internal/geo"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when waiting on a subscription that has been released.
var ErrClosed = errors.New("feed: subscription closed")

// Feed hands out live views of the donation collection.
type Feed struct {
	source store.Source
	logger zerolog.Logger
	now    func() time.Time
}

// NewFeed creates a Feed reading from source.
func NewFeed(source store.Source, logger zerolog.Logger) *Feed {
	return &Feed{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Subscription is one observer's view. Each snapshot it receives replaces the
// previous one entirely; older or repeated revisions are ignored.
type Subscription struct {
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current models.Snapshot
	ready   bool
	changed chan struct{} // closed and replaced on every applied snapshot

	readyCh   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	unsubscribe func()
	stopAfter   func() bool
}

// Open acquires one store subscription. It is released by Close or when ctx
// ends, whichever comes first.
func (f *Feed) Open(ctx context.Context) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Subscription{
		logger:  f.logger,
		now:     f.now,
		changed: make(chan struct{}),
		readyCh: make(chan struct{}),
		closed:  make(chan struct{}),
	}

	unsubscribe, err := f.source.Subscribe(s.apply)
	if err != nil {
		return nil, fmt.Errorf("open donation feed: %w", err)
	}

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	s.stopAfter = stop
	s.mu.Unlock()

	return s, nil
}

// Watch calls fn with the latest snapshot every time it changes until ctx
// ends or fn returns an error. The subscription is released on return.
func (f *Feed) Watch(ctx context.Context, fn func(models.Snapshot) error) error {
	sub, err := f.Open(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for snap := range sub.Snapshots(ctx) {
		if err := fn(snap); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Subscription) apply(snap models.CollectionSnapshot) {
	select {
	case <-s.closed:
		return
	default:
	}

	records := make([]models.DonationRecord, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		records = append(records, geo.Record(doc))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready && snap.Revision <= s.current.Revision {
		s.logger.Debug().
			Uint64("revision", snap.Revision).
			Uint64("applied", s.current.Revision).
			Msg("Ignoring stale donation snapshot")
		return
	}

	s.current = models.Snapshot{
		Revision:   snap.Revision,
		Records:    records,
		ReceivedAt: s.now(),
	}
	close(s.changed)
	s.changed = make(chan struct{})

	if !s.ready {
		s.ready = true
		close(s.readyCh)
	}
}

// Current returns the latest applied snapshot, or false before the first arrives.
func (s *Subscription) Current() (models.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.ready
}

// Ready blocks until the first snapshot has been applied.
func (s *Subscription) Ready(ctx context.Context) (models.Snapshot, error) {
	select {
	case <-s.readyCh:
		snap, _ := s.Current()
		return snap, nil
	case <-s.closed:
		return models.Snapshot{}, ErrClosed
	case <-ctx.Done():
		return models.Snapshot{}, ctx.Err()
	}
}

// Snapshots yields the latest snapshot each time it changes. A slow consumer
// skips intermediate snapshots; it never sees them merged. The sequence ends
// when ctx ends or the subscription is closed.
func (s *Subscription) Snapshots(ctx context.Context) iter.Seq[models.Snapshot] {
	return func(yield func(models.Snapshot) bool) {
		var (
			last uint64
			seen bool
		)
		for {
			s.mu.Lock()
			cur, ready, changed := s.current, s.ready, s.changed
			s.mu.Unlock()

			if ready && (!seen || cur.Revision != last) {
				seen, last = true, cur.Revision
				if !yield(cur) {
					return
				}
				continue
			}

			select {
			case <-changed:
			case <-s.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.closed
}

// Close releases the store subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		unsubscribe, stopAfter := s.unsubscribe, s.stopAfter
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		if stopAfter != nil {
			stopAfter()
		}
	})
}
