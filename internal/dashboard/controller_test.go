package dashboard_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/relief-tracker/internal/constants"
	"github.com/benmeehan/relief-tracker/internal/dashboard"
	"github.com/benmeehan/relief-tracker/internal/feed"
	"github.com/benmeehan/relief-tracker/internal/intake"
	"github.com/benmeehan/relief-tracker/internal/lifecycle"
	"github.com/benmeehan/relief-tracker/internal/mocks"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticView struct {
	snap models.Snapshot
}

func (v staticView) Current() (models.Snapshot, bool) {
	return v.snap, true
}

// blockingMachine holds every Apply until release is closed.
type blockingMachine struct {
	entered chan string
	release chan struct{}
}

func newBlockingMachine() *blockingMachine {
	return &blockingMachine{entered: make(chan string, 4), release: make(chan struct{})}
}

func (b *blockingMachine) Apply(_ context.Context, id string, from models.Status) (models.Status, error) {
	b.entered <- id
	<-b.release
	return lifecycle.Advance(from)
}

func operatorSession(t *testing.T) *dashboard.Session {
	t.Helper()
	s := dashboard.NewSession("1234")
	require.NoError(t, s.SelectRole(dashboard.RoleOperator))
	require.NoError(t, s.Authenticate("1234"))
	return s
}

func snapshotOf(records ...models.DonationRecord) staticView {
	return staticView{snap: models.Snapshot{Revision: 1, Records: records}}
}

func TestRenderList_Labels(t *testing.T) {
	view := snapshotOf(
		models.DonationRecord{ID: "a", ItemName: "Rice", Quantity: 5, Status: models.StatusPending,
			Location: &models.Coordinate{Latitude: 10.31567, Longitude: 123.88543}},
		models.DonationRecord{ID: "b", ItemName: "Water", Quantity: 2, DonorName: "Ana", Status: models.StatusInTransit},
		models.DonationRecord{ID: "c", ItemName: "Tents", Quantity: 1, Status: models.StatusDelivered},
	)

	c := dashboard.NewController(operatorSession(t), view, nil, 1, zerolog.Nop())
	defer c.Close()
	entries := slices.Collect(c.RenderList())

	require.Len(t, entries, 3)
	assert.Equal(t, "Anonymous", entries[0].Donor)
	assert.Equal(t, "Lat: 10.3157, Lon: 123.8854", entries[0].Location)
	assert.Equal(t, constants.ActionAccept, entries[0].Action)
	assert.Equal(t, constants.ColorAmber, entries[0].StatusColor)

	assert.Equal(t, "Ana", entries[1].Donor)
	assert.Equal(t, "Location not available", entries[1].Location)
	assert.Equal(t, constants.ActionDeliver, entries[1].Action)

	assert.Empty(t, entries[2].Action)
	assert.Equal(t, constants.ColorGreen, entries[2].StatusColor)
}

func TestRenderList_DonorSeesNoActions(t *testing.T) {
	session := dashboard.NewSession("1234")
	require.NoError(t, session.SelectRole(dashboard.RoleDonor))
	view := snapshotOf(models.DonationRecord{ID: "a", Status: models.StatusPending})

	c := dashboard.NewController(session, view, nil, 1, zerolog.Nop())
	defer c.Close()

	for e := range c.RenderList() {
		assert.Empty(t, e.Action)
	}
}

func TestInvokeTransition_UnauthorizedNeverWrites(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	machine := lifecycle.NewMachine(mockStore, zerolog.Nop())
	view := snapshotOf(models.DonationRecord{ID: "a", Status: models.StatusPending})

	session := dashboard.NewSession("1234")
	require.NoError(t, session.SelectRole(dashboard.RoleOperator))
	require.Error(t, session.Authenticate("0000"))

	c := dashboard.NewController(session, view, machine, 1, zerolog.Nop())
	defer c.Close()
	out := c.InvokeTransition(context.Background(), "a")

	assert.ErrorIs(t, out.Err, models.ErrUnauthorized)
	assert.Equal(t, constants.MessageNotAuthorized, out.Message)
	mockStore.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestInvokeTransition_RejectsUnknownAndDelivered(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	machine := lifecycle.NewMachine(mockStore, zerolog.Nop())
	view := snapshotOf(models.DonationRecord{ID: "done", Status: models.StatusDelivered})

	c := dashboard.NewController(operatorSession(t), view, machine, 1, zerolog.Nop())
	defer c.Close()

	out := c.InvokeTransition(context.Background(), "missing")
	assert.ErrorIs(t, out.Err, models.ErrNotFound)
	assert.Equal(t, constants.MessageUnknownDonation, out.Message)

	out = c.InvokeTransition(context.Background(), "done")
	assert.ErrorIs(t, out.Err, models.ErrInvalidTransition)
	assert.Equal(t, constants.MessageAlreadyDelivered, out.Message)

	mockStore.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestInvokeTransition_StoreFailureKeepsStatus(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	mockStore.On("Update", mock.Anything, "a", mock.Anything).Return(assert.AnError)
	machine := lifecycle.NewMachine(mockStore, zerolog.Nop())
	view := snapshotOf(models.DonationRecord{ID: "a", Status: models.StatusPending})

	c := dashboard.NewController(operatorSession(t), view, machine, 1, zerolog.Nop())
	defer c.Close()
	out := c.InvokeTransition(context.Background(), "a")

	assert.ErrorIs(t, out.Err, models.ErrStoreWrite)
	assert.Equal(t, constants.MessageStatusFailed, out.Message)
	assert.Empty(t, out.Status)
}

func TestInvokeTransition_OneWritePerRecordAtATime(t *testing.T) {
	machine := newBlockingMachine()
	view := snapshotOf(models.DonationRecord{ID: "a", Status: models.StatusPending})

	c := dashboard.NewController(operatorSession(t), view, machine, 2, zerolog.Nop())
	defer c.Close()

	first := make(chan dashboard.Outcome, 1)
	c.InvokeTransitionAsync("a", func(o dashboard.Outcome) { first <- o })
	<-machine.entered

	out := c.InvokeTransition(context.Background(), "a")
	assert.ErrorIs(t, out.Err, models.ErrTransitionInFlight)
	assert.Equal(t, constants.MessageAlreadyUpdating, out.Message)

	close(machine.release)
	select {
	case o := <-first:
		require.NoError(t, o.Err)
		assert.Equal(t, models.StatusInTransit, o.Status)
		assert.Equal(t, "Donation status updated to In Transit", o.Message)
	case <-time.After(time.Second):
		t.Fatal("async transition did not finish")
	}
}

func TestInvokeTransitionAsync_NoCallbackAfterClose(t *testing.T) {
	machine := newBlockingMachine()
	view := snapshotOf(models.DonationRecord{ID: "a", Status: models.StatusPending})
	c := dashboard.NewController(operatorSession(t), view, machine, 1, zerolog.Nop())

	var (
		mu     sync.Mutex
		called bool
	)
	c.InvokeTransitionAsync("a", func(dashboard.Outcome) {
		mu.Lock()
		called = true
		mu.Unlock()
	})
	<-machine.entered

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	// Let Close mark the controller closed before the write completes.
	time.Sleep(50 * time.Millisecond)
	close(machine.release)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not wait for the outstanding write")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, called)

	c.InvokeTransitionAsync("a", func(dashboard.Outcome) { t.Error("callback after close") })
}

func TestDonationLifecycle_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := store.NewMemoryStore(nil, zerolog.Nop())
	require.NoError(t, err)
	f := feed.NewFeed(s, zerolog.Nop())

	donorView, err := f.Open(ctx)
	require.NoError(t, err)
	defer donorView.Close()

	res, err := intake.NewService(s, nil, zerolog.Nop()).Submit(ctx, intake.Form{
		ItemName: "Blankets",
		Quantity: "20",
		Location: "10.3157,123.8854",
	})
	require.NoError(t, err)

	operatorView, err := f.Open(ctx)
	require.NoError(t, err)
	defer operatorView.Close()

	c := dashboard.NewController(operatorSession(t), operatorView, lifecycle.NewMachine(s, zerolog.Nop()), 1, zerolog.Nop())
	defer c.Close()

	entries := slices.Collect(c.RenderList())
	require.Len(t, entries, 1)
	assert.Equal(t, "Blankets", entries[0].ItemName)
	assert.Equal(t, 20, entries[0].Quantity)
	assert.Equal(t, "Anonymous", entries[0].Donor)
	assert.Equal(t, constants.ActionAccept, entries[0].Action)

	out := c.InvokeTransition(ctx, res.ID)
	require.NoError(t, out.Err)
	assert.Equal(t, models.StatusInTransit, out.Status)

	snap, ok := donorView.Current()
	require.True(t, ok)
	rec, found := snap.Find(res.ID)
	require.True(t, found)
	assert.Equal(t, models.StatusInTransit, rec.Status)

	out = c.InvokeTransition(ctx, res.ID)
	require.NoError(t, out.Err)
	assert.Equal(t, models.StatusDelivered, out.Status)

	out = c.InvokeTransition(ctx, res.ID)
	assert.ErrorIs(t, out.Err, models.ErrInvalidTransition)

	entries = slices.Collect(c.RenderList())
	assert.Equal(t, models.StatusDelivered, entries[0].Status)
	assert.Empty(t, entries[0].Action)
}
