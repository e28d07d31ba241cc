package store

import (
	"errors"
	"testing"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(revision uint64) snapshotLoader {
	return func() (models.CollectionSnapshot, error) {
		return models.CollectionSnapshot{Revision: revision}, nil
	}
}

type revisions struct {
	got []uint64
}

func (r *revisions) handle(s models.CollectionSnapshot) {
	r.got = append(r.got, s.Revision)
}

func TestFanOut_SkipsRevisionAlreadyDeliveredOnSubscribe(t *testing.T) {
	f := newFanOut()
	rec := &revisions{}
	_, err := f.subscribe(rec.handle, at(5))
	require.NoError(t, err)

	require.NoError(t, f.publish(at(5)))
	require.NoError(t, f.publish(at(6)))

	assert.Equal(t, []uint64{5, 6}, rec.got)
}

func TestFanOut_LateReloadNeverGoesBackwards(t *testing.T) {
	f := newFanOut()
	early, late := &revisions{}, &revisions{}
	_, err := f.subscribe(early.handle, at(4))
	require.NoError(t, err)

	// A reload of revision 5 lands after a subscriber already joined at 6.
	_, err = f.subscribe(late.handle, at(6))
	require.NoError(t, err)
	require.NoError(t, f.publish(at(5)))
	require.NoError(t, f.publish(at(6)))
	require.NoError(t, f.publish(at(3)))

	assert.Equal(t, []uint64{4, 5, 6}, early.got)
	assert.Equal(t, []uint64{6}, late.got)
}

func TestFanOut_UnsubscribeStopsDelivery(t *testing.T) {
	f := newFanOut()
	rec := &revisions{}
	unsubscribe, err := f.subscribe(rec.handle, at(1))
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, f.count())

	loads := 0
	require.NoError(t, f.publish(func() (models.CollectionSnapshot, error) {
		loads++
		return models.CollectionSnapshot{Revision: 2}, nil
	}))
	assert.Equal(t, 0, loads)
	assert.Equal(t, []uint64{1}, rec.got)
}

func TestFanOut_LoadErrors(t *testing.T) {
	f := newFanOut()
	failing := func() (models.CollectionSnapshot, error) {
		return models.CollectionSnapshot{}, errors.New("connection reset")
	}

	_, err := f.subscribe((&revisions{}).handle, failing)
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, 0, f.count())

	_, err = f.subscribe((&revisions{}).handle, at(1))
	require.NoError(t, err)
	assert.ErrorContains(t, f.publish(failing), "connection reset")
}
