package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/rs/zerolog"
)

// nextStatus holds the only legal forward step for each non-terminal status.
var nextStatus = map[models.Status]models.Status{
	models.StatusPending:   models.StatusInTransit,
	models.StatusInTransit: models.StatusDelivered,
}

// Advance returns the status that follows current. Delivered and unknown
// statuses have no successor.
func Advance(current models.Status) (models.Status, error) {
	next, ok := nextStatus[current]
	if !ok {
		return "", fmt.Errorf("advance from %q: %w", current, models.ErrInvalidTransition)
	}
	return next, nil
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status models.Status) bool {
	_, ok := nextStatus[status]
	return !ok
}

// StatusWriter is the part of the record store a transition touches.
type StatusWriter interface {
	Update(ctx context.Context, id string, update models.DonationUpdate) error
	Get(ctx context.Context, id string) (models.DonationDocument, error)
}

// Machine applies status transitions to stored donations.
type Machine struct {
	store  StatusWriter
	logger zerolog.Logger
}

// NewMachine creates a Machine writing through store.
func NewMachine(store StatusWriter, logger zerolog.Logger) *Machine {
	return &Machine{
		store:  store,
		logger: logger,
	}
}

// Apply moves donation id one step forward from the status the caller last
// saw. The write is conditional on that status still being stored; if another
// writer already made the same step the call succeeds without writing.
func (m *Machine) Apply(ctx context.Context, id string, from models.Status) (models.Status, error) {
	next, err := Advance(from)
	if err != nil {
		return "", err
	}

	err = m.store.Update(ctx, id, models.DonationUpdate{Status: next, IfStatus: from})
	if err == nil {
		m.logger.Info().Str("id", id).Str("from", string(from)).Str("to", string(next)).Msg("Donation status advanced")
		return next, nil
	}

	if !errors.Is(err, store.ErrPreconditionFailed) {
		m.logger.Error().Err(err).Str("id", id).Msg("Failed to write donation status")
		return "", fmt.Errorf("%w: %w", models.ErrStoreWrite, err)
	}

	doc, getErr := m.store.Get(ctx, id)
	if getErr != nil {
		return "", fmt.Errorf("%w: %w", models.ErrStoreWrite, getErr)
	}
	if doc.Status == next {
		m.logger.Debug().Str("id", id).Str("status", string(next)).Msg("Transition already applied")
		return next, nil
	}

	m.logger.Warn().Str("id", id).Str("expected", string(from)).Str("stored", string(doc.Status)).Msg("Donation status changed concurrently")
	return "", fmt.Errorf("advance %s from %q, stored %q: %w", id, from, doc.Status, models.ErrInvalidTransition)
}
