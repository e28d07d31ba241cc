package dashboard

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/relief-tracker/internal/constants"
	"github.com/benmeehan/relief-tracker/internal/geo"
	"github.com/benmeehan/relief-tracker/internal/lifecycle"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/internal/utils"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// asyncWriteTimeout bounds a transition started with InvokeTransitionAsync.
const asyncWriteTimeout = 30 * time.Second

// SnapshotView is the live collection a controller renders from.
type SnapshotView interface {
	Current() (models.Snapshot, bool)
}

// Transitioner applies one lifecycle step to a stored donation.
type Transitioner interface {
	Apply(ctx context.Context, id string, from models.Status) (models.Status, error)
}

// Entry is one row of the donation list.
type Entry struct {
	ID          string
	ItemName    string
	Quantity    int
	Donor       string
	Status      models.Status
	StatusColor string
	Location    string
	CreatedAt   time.Time
	Action      string // empty when the viewer cannot act on this row
}

// Outcome is the result of a transition command, ready to show.
type Outcome struct {
	ID      string
	Status  models.Status
	Message string
	Err     error
}

// Controller drives the donation dashboard for one session.
type Controller struct {
	session *Session
	view    SnapshotView
	machine Transitioner
	pool    *utils.WorkerPool
	logger  zerolog.Logger

	inFlight cmap.ConcurrentMap[string, struct{}]

	// submitMu keeps Submit and Shutdown on the pool from overlapping.
	submitMu sync.RWMutex
	closed   atomic.Bool
}

// NewController creates a Controller running asynchronous transitions on workers goroutines.
func NewController(session *Session, view SnapshotView, machine Transitioner, workers int, logger zerolog.Logger) *Controller {
	if workers <= 0 {
		workers = constants.DefaultDashboardPool
	}
	return &Controller{
		session:  session,
		view:     view,
		machine:  machine,
		pool:     utils.NewWorkerPool(workers, logger),
		logger:   logger,
		inFlight: cmap.New[struct{}](),
	}
}

// RenderList yields the rows of the latest snapshot. Each range over the
// returned sequence reads the snapshot afresh.
func (c *Controller) RenderList() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		snap, ok := c.view.Current()
		if !ok {
			return
		}
		operator := c.session.IsOperator()
		for _, rec := range snap.Records {
			if !yield(newEntry(rec, operator)) {
				return
			}
		}
	}
}

func newEntry(rec models.DonationRecord, operator bool) Entry {
	e := Entry{
		ID:          rec.ID,
		ItemName:    rec.ItemName,
		Quantity:    rec.Quantity,
		Donor:       DonorLabel(rec.DonorName),
		Status:      rec.Status,
		StatusColor: geo.StatusColor(rec.Status),
		Location:    FormatLocation(rec.Location),
		CreatedAt:   rec.CreatedAt,
	}
	if operator {
		e.Action = ActionLabel(rec.Status)
	}
	return e
}

// DonorLabel returns the donor name, or the anonymous label when it is empty.
func DonorLabel(name string) string {
	if name == "" {
		return constants.AnonymousDonor
	}
	return name
}

// FormatLocation renders a coordinate to four decimals.
func FormatLocation(c *models.Coordinate) string {
	if c == nil {
		return constants.LocationUnavailable
	}
	return fmt.Sprintf("Lat: %.4f, Lon: %.4f", c.Latitude, c.Longitude)
}

// ActionLabel names the operator action for status, or "" for terminal statuses.
func ActionLabel(status models.Status) string {
	switch status {
	case models.StatusPending:
		return constants.ActionAccept
	case models.StatusInTransit:
		return constants.ActionDeliver
	default:
		return ""
	}
}

// InvokeTransition advances donation id one step. It never panics or returns
// a fatal error; failures are reported in the Outcome.
func (c *Controller) InvokeTransition(ctx context.Context, id string) Outcome {
	if !c.session.IsOperator() {
		return failure(id, fmt.Errorf("advance %s: %w", id, models.ErrUnauthorized))
	}

	snap, _ := c.view.Current()
	rec, ok := snap.Find(id)
	if !ok {
		return failure(id, fmt.Errorf("advance %s: %w", id, models.ErrNotFound))
	}
	if lifecycle.IsTerminal(rec.Status) {
		return failure(id, fmt.Errorf("advance %s from %q: %w", id, rec.Status, models.ErrInvalidTransition))
	}

	if !c.inFlight.SetIfAbsent(id, struct{}{}) {
		return failure(id, fmt.Errorf("advance %s: %w", id, models.ErrTransitionInFlight))
	}
	defer c.inFlight.Remove(id)

	next, err := c.machine.Apply(ctx, id, rec.Status)
	if err != nil {
		c.logger.Error().Err(err).Str("id", id).Msg("Donation transition failed")
		return failure(id, err)
	}

	return Outcome{
		ID:      id,
		Status:  next,
		Message: fmt.Sprintf(constants.MessageStatusUpdated, next),
	}
}

// InvokeTransitionAsync runs InvokeTransition on the worker pool. If the
// controller is closed before the write finishes, the write still completes
// but done is not called.
func (c *Controller) InvokeTransitionAsync(id string, done func(Outcome)) {
	c.submitMu.RLock()
	defer c.submitMu.RUnlock()
	if c.closed.Load() {
		c.logger.Debug().Str("id", id).Msg("Dropping transition on closed dashboard")
		return
	}

	c.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		defer cancel()

		outcome := c.InvokeTransition(ctx, id)

		if c.closed.Load() || done == nil {
			return
		}
		done(outcome)
	})
}

// Close detaches the controller. Outstanding writes are allowed to finish.
func (c *Controller) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	c.pool.Shutdown()
}

func failure(id string, err error) Outcome {
	return Outcome{ID: id, Message: failureMessage(err), Err: err}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return constants.MessageNotAuthorized
	case errors.Is(err, models.ErrNotFound):
		return constants.MessageUnknownDonation
	case errors.Is(err, models.ErrTransitionInFlight):
		return constants.MessageAlreadyUpdating
	case errors.Is(err, models.ErrInvalidTransition):
		return constants.MessageAlreadyDelivered
	default:
		return constants.MessageStatusFailed
	}
}
