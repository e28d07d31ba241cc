package geo

import (
	"math"
	"sync"

	"github.com/benmeehan/relief-tracker/internal/constants"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/internal/utils"
)

// minDelta keeps a single marker, or markers on one spot, from zooming in to nothing.
const minDelta = 0.01

// DefaultViewport is the region shown while no marker is placed.
func DefaultViewport() models.Viewport {
	return models.Viewport{
		Center: models.Coordinate{
			Latitude:  constants.DefaultRegionLatitude,
			Longitude: constants.DefaultRegionLongitude,
		},
		LatitudeDelta:  constants.DefaultRegionDelta,
		LongitudeDelta: constants.DefaultRegionDelta,
	}
}

// ViewportTracker refits the map only when the set of marker ids changes,
// so status changes alone never move the view.
type ViewportTracker struct {
	padding models.EdgePadding

	mu      sync.Mutex
	members map[string]struct{}
	current models.Viewport
	fitted  bool
}

// NewViewportTracker creates a tracker that keeps padding points around fitted bounds.
func NewViewportTracker(padding int) *ViewportTracker {
	return &ViewportTracker{
		padding: models.EdgePadding{Top: padding, Right: padding, Bottom: padding, Left: padding},
	}
}

// Fit returns the viewport for markers and whether it was recomputed.
func (t *ViewportTracker) Fit(markers []models.Marker) (models.Viewport, bool) {
	ids := make([]string, 0, len(markers))
	for _, m := range markers {
		ids = append(ids, m.ID)
	}
	members := utils.SliceToSet(ids)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fitted && utils.SetsEqual(t.members, members) {
		return t.current, false
	}

	t.members = members
	t.fitted = true
	if len(markers) == 0 {
		t.current = DefaultViewport()
	} else {
		t.current = fitBounds(markers, t.padding)
	}
	return t.current, true
}

func fitBounds(markers []models.Marker, padding models.EdgePadding) models.Viewport {
	b := models.Bounds{
		MinLat: math.Inf(1), MinLng: math.Inf(1),
		MaxLat: math.Inf(-1), MaxLng: math.Inf(-1),
	}
	for _, m := range markers {
		b.MinLat = math.Min(b.MinLat, m.Coordinate.Latitude)
		b.MaxLat = math.Max(b.MaxLat, m.Coordinate.Latitude)
		b.MinLng = math.Min(b.MinLng, m.Coordinate.Longitude)
		b.MaxLng = math.Max(b.MaxLng, m.Coordinate.Longitude)
	}

	return models.Viewport{
		Center: models.Coordinate{
			Latitude:  (b.MinLat + b.MaxLat) / 2,
			Longitude: (b.MinLng + b.MaxLng) / 2,
		},
		LatitudeDelta:  math.Max(b.MaxLat-b.MinLat, minDelta),
		LongitudeDelta: math.Max(b.MaxLng-b.MinLng, minDelta),
		Bounds:         &b,
		Padding:        padding,
	}
}
