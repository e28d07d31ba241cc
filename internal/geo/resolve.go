package geo

import (
	"math"
	"strings"

	"github.com/benmeehan/relief-tracker/internal/models"
	"googlemaps.github.io/maps"
)

// Resolve turns a persisted location into a canonical coordinate. It reports
// false for absent, malformed, unparsable or out-of-range locations.
func Resolve(loc models.LocationField) (models.Coordinate, bool) {
	switch loc.Kind {
	case models.LocationStructured:
		c := models.Coordinate{Latitude: loc.Latitude, Longitude: loc.Longitude}
		return c, Valid(c)
	case models.LocationLegacy:
		return ParseLegacy(loc.Raw)
	default:
		return models.Coordinate{}, false
	}
}

// ParseLegacy parses the delimited "lat,lng" form written by older clients.
// Whitespace around either number is ignored.
func ParseLegacy(raw string) (models.Coordinate, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return models.Coordinate{}, false
	}

	ll, err := maps.ParseLatLng(strings.TrimSpace(parts[0]) + "," + strings.TrimSpace(parts[1]))
	if err != nil {
		return models.Coordinate{}, false
	}

	c := models.Coordinate{Latitude: ll.Lat, Longitude: ll.Lng}
	return c, Valid(c)
}

// Valid reports whether c is a finite coordinate on the globe.
func Valid(c models.Coordinate) bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Record resolves a stored document into a record.
func Record(doc models.DonationDocument) models.DonationRecord {
	rec := models.DonationRecord{
		ID:        doc.ID,
		ItemName:  doc.ItemName,
		Quantity:  doc.Quantity,
		DonorName: doc.DonorName,
		Status:    doc.Status,
		CreatedAt: doc.CreatedAt,
	}
	if c, ok := Resolve(doc.Location); ok {
		rec.Location = &c
	}
	return rec
}
