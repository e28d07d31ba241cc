package store

import (
	"sync"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/google/uuid"
)

type snapshotLoader func() (models.CollectionSnapshot, error)

type subscriber struct {
	handler SnapshotHandler
	last    uint64
	seen    bool
}

// fanOut delivers snapshots loaded from an external store. Loads happen under
// the delivery lock and each subscriber only receives revisions newer than
// the last one it got, so a slow reload can never reach anyone out of order.
type fanOut struct {
	mu   sync.Mutex
	subs map[string]*subscriber
}

func newFanOut() *fanOut {
	return &fanOut{subs: make(map[string]*subscriber)}
}

// subscribe registers handler and hands it the snapshot returned by load.
func (f *fanOut) subscribe(handler SnapshotHandler, load snapshotLoader) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := load()
	if err != nil {
		return nil, err
	}

	key := uuid.New().String()
	f.subs[key] = &subscriber{handler: handler, last: snap.Revision, seen: true}
	handler(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, key)
			f.mu.Unlock()
		})
	}, nil
}

// publish loads the current snapshot and delivers it to every subscriber
// that has not seen that revision yet.
func (f *fanOut) publish(load snapshotLoader) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.subs) == 0 {
		return nil
	}
	snap, err := load()
	if err != nil {
		return err
	}
	for _, sub := range f.subs {
		if sub.seen && snap.Revision <= sub.last {
			continue
		}
		sub.last, sub.seen = snap.Revision, true
		sub.handler(snap)
	}
	return nil
}

func (f *fanOut) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
