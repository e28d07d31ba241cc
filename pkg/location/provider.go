package location

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the device refuses access to its position.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrUnavailable is returned when no position source is configured or none produced a fix.
	ErrUnavailable = errors.New("location unavailable")
)

// Provider resolves the current position of the device.
type Provider interface {
	GetLocation(ctx context.Context) (Location, error)
}

// NoneProvider is used when location lookup is disabled.
type NoneProvider struct{}

// GetLocation always reports that no position is available.
func (NoneProvider) GetLocation(context.Context) (Location, error) {
	return Location{}, ErrUnavailable
}
