package location

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// Geolocator is the part of the Maps client the provider needs.
type Geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider uses the Google Maps Geolocation API. Nearby WiFi
// access points are included when they can be scanned; otherwise the lookup
// falls back to the requester's IP address.
type GoogleGeolocationProvider struct {
	client  Geolocator
	timeout time.Duration
	scanner func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	logger  zerolog.Logger
}

// NewGoogleGeolocationProvider creates a provider backed by a Maps API client.
func NewGoogleGeolocationProvider(apiKey string, timeout time.Duration, logger zerolog.Logger) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return newGoogleGeolocationProvider(c, timeout, scanWiFiAccessPoints, logger), nil
}

func newGoogleGeolocationProvider(client Geolocator, timeout time.Duration, scanner func(context.Context) ([]maps.WiFiAccessPoint, error), logger zerolog.Logger) *GoogleGeolocationProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleGeolocationProvider{
		client:  client,
		timeout: timeout,
		scanner: scanner,
		logger:  logger,
	}
}

// GetLocation asks the Geolocation API for the device position.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}
	if g.scanner != nil {
		aps, err := g.scanner(ctx)
		if err != nil {
			g.logger.Debug().Err(err).Msg("WiFi scan unavailable, using IP geolocation only")
		} else {
			req.WiFiAccessPoints = aps
		}
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, fmt.Errorf("geolocate: %w", err)
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
	}, nil
}
