package geo

import (
	"fmt"

	"github.com/benmeehan/relief-tracker/internal/constants"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/rs/zerolog"
)

// StatusColor maps a status to its marker colour. Unknown statuses get the
// neutral colour.
func StatusColor(status models.Status) string {
	switch status {
	case models.StatusPending:
		return constants.ColorAmber
	case models.StatusInTransit:
		return constants.ColorBlue
	case models.StatusDelivered:
		return constants.ColorGreen
	default:
		return constants.ColorNeutral
	}
}

// BuildMarker projects one record. It reports false when the record has no
// usable location.
func BuildMarker(rec models.DonationRecord) (models.Marker, bool) {
	if rec.Location == nil || !Valid(*rec.Location) {
		return models.Marker{}, false
	}
	return models.Marker{
		ID:         rec.ID,
		Coordinate: *rec.Location,
		Color:      StatusColor(rec.Status),
		Title:      rec.ItemName,
		Detail:     fmt.Sprintf("Status: %s", rec.Status),
	}, true
}

// BuildMarkers projects every record that has a usable location, keeping
// input order.
func BuildMarkers(records []models.DonationRecord, logger zerolog.Logger) []models.Marker {
	markers := make([]models.Marker, 0, len(records))
	for _, rec := range records {
		m, ok := BuildMarker(rec)
		if !ok {
			logger.Debug().Str("id", rec.ID).Msg("Skipping donation without usable location")
			continue
		}
		markers = append(markers, m)
	}
	return markers
}
