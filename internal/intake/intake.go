package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benmeehan/relief-tracker/internal/geo"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/location"
	"github.com/rs/zerolog"
)

// Form is a donation as typed by the donor.
type Form struct {
	ItemName  string
	Quantity  string
	DonorName string
	Location  string // optional "lat,lng"; the device position is used when empty
}

// Creator is the part of the record store intake writes to.
type Creator interface {
	Create(ctx context.Context, doc models.DonationDocument) (string, error)
}

// Result describes an accepted donation.
type Result struct {
	ID       string
	Location *models.Coordinate
	// LocationErr is set when the device position could not be read; the
	// donation was still recorded without a location.
	LocationErr error
}

// Service validates donor submissions and records them as pending donations.
type Service struct {
	store   Creator
	locator location.Provider
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates an intake Service. locator may be nil to skip position lookup.
func NewService(store Creator, locator location.Provider, logger zerolog.Logger) *Service {
	if locator == nil {
		locator = location.NoneProvider{}
	}
	return &Service{
		store:   store,
		locator: locator,
		logger:  logger,
		now:     time.Now,
	}
}

type validForm struct {
	itemName  string
	quantity  int
	donorName string
	location  *models.Coordinate
}

// Validate checks a form without writing anything.
func Validate(form Form) error {
	_, err := validate(form)
	return err
}

func validate(form Form) (validForm, error) {
	v := validForm{
		itemName:  strings.TrimSpace(form.ItemName),
		donorName: strings.TrimSpace(form.DonorName),
	}
	if v.itemName == "" {
		return validForm{}, &models.ValidationError{Field: "itemName", Message: "item name is required"}
	}

	qty := strings.TrimSpace(form.Quantity)
	if qty == "" {
		return validForm{}, &models.ValidationError{Field: "quantity", Message: "quantity is required"}
	}
	n, err := strconv.Atoi(qty)
	if err != nil || n <= 0 {
		return validForm{}, &models.ValidationError{Field: "quantity", Message: "quantity must be a positive whole number"}
	}
	v.quantity = n

	if raw := strings.TrimSpace(form.Location); raw != "" {
		c, ok := geo.ParseLegacy(raw)
		if !ok {
			return validForm{}, &models.ValidationError{Field: "location", Message: `location must be "latitude,longitude"`}
		}
		v.location = &c
	}
	return v, nil
}

// Submit validates form, resolves the donor position when none was typed and
// records the donation as Pending.
func (s *Service) Submit(ctx context.Context, form Form) (Result, error) {
	v, err := validate(form)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if v.location == nil {
		v.location, result.LocationErr = s.locate(ctx)
	}
	result.Location = v.location

	doc := models.DonationDocument{
		ItemName:  v.itemName,
		Quantity:  v.quantity,
		DonorName: v.donorName,
		Status:    models.StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if v.location != nil {
		doc.Location = models.StructuredLocation(v.location.Latitude, v.location.Longitude)
	}

	id, err := s.store.Create(ctx, doc)
	if err != nil {
		s.logger.Error().Err(err).Str("item", v.itemName).Msg("Failed to record donation")
		return Result{}, fmt.Errorf("%w: %w", models.ErrStoreWrite, err)
	}
	result.ID = id

	s.logger.Info().
		Str("id", id).
		Str("item", v.itemName).
		Int("quantity", v.quantity).
		Bool("located", v.location != nil).
		Msg("Donation recorded")
	return result, nil
}

// locate asks the provider for a position. Any failure leaves the donation
// without a location.
func (s *Service) locate(ctx context.Context) (*models.Coordinate, error) {
	loc, err := s.locator.GetLocation(ctx)
	if err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			s.logger.Warn().Msg("Location permission denied, recording donation without location")
		} else {
			s.logger.Warn().Err(err).Msg("Location lookup failed, recording donation without location")
		}
		return nil, err
	}

	c := models.Coordinate{Latitude: loc.Latitude, Longitude: loc.Longitude}
	if !geo.Valid(c) {
		return nil, fmt.Errorf("provider returned invalid coordinate %v,%v: %w", c.Latitude, c.Longitude, location.ErrUnavailable)
	}
	return &c, nil
}
