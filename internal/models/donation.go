package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Status is the fulfillment stage of a donation as persisted in the store.
type Status string

// Donation statuses, spelled as they are stored.
const (
	StatusPending   Status = "Pending"
	StatusInTransit Status = "In Transit"
	StatusDelivered Status = "Delivered"
)

// LocationKind tags which encoding a persisted location arrived in.
type LocationKind int

const (
	LocationAbsent LocationKind = iota
	LocationStructured
	LocationLegacy
	LocationMalformed
)

// Coordinate is the canonical structured geocoordinate.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationField is the persisted location of a donation. Older clients wrote
// a "lat,lng" string, newer ones a {latitude, longitude} object; both are
// kept as-is in the store and resolved once when a snapshot is ingested.
type LocationField struct {
	Kind      LocationKind
	Latitude  float64
	Longitude float64
	Raw       string
}

// StructuredLocation builds a structured location field.
func StructuredLocation(lat, lng float64) LocationField {
	return LocationField{Kind: LocationStructured, Latitude: lat, Longitude: lng}
}

// LegacyLocation builds a location field holding a delimited "lat,lng" string.
func LegacyLocation(raw string) LocationField {
	return LocationField{Kind: LocationLegacy, Raw: raw}
}

// UnmarshalJSON accepts null, a legacy string or an object. Shapes it cannot
// read are recorded as malformed rather than failing the whole document.
func (l *LocationField) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = LocationField{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = LocationField{}
			return nil
		}
		*l = LegacyLocation(s)
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			*l = LocationField{Kind: LocationMalformed, Raw: string(trimmed)}
			return nil
		}
		lat, okLat := numberField(fields, "latitude", "lat")
		lng, okLng := numberField(fields, "longitude", "lng", "lon")
		if !okLat || !okLng {
			*l = LocationField{Kind: LocationMalformed, Raw: string(trimmed)}
			return nil
		}
		*l = StructuredLocation(lat, lng)
	default:
		*l = LocationField{Kind: LocationMalformed, Raw: string(trimmed)}
	}
	return nil
}

// MarshalJSON writes each variant back in the shape it was read in.
func (l LocationField) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case LocationStructured:
		return json.Marshal(Coordinate{Latitude: l.Latitude, Longitude: l.Longitude})
	case LocationLegacy:
		return json.Marshal(l.Raw)
	case LocationMalformed:
		if json.Valid([]byte(l.Raw)) {
			return []byte(l.Raw), nil
		}
	}
	return []byte("null"), nil
}

func numberField(fields map[string]json.RawMessage, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		// A null coordinate decodes without error but is not a number.
		var v *float64
		if err := json.Unmarshal(raw, &v); err != nil || v == nil {
			return 0, false
		}
		return *v, true
	}
	return 0, false
}

// DonationDocument is a donation as persisted in the record store.
type DonationDocument struct {
	ID        string        `json:"id"`
	ItemName  string        `json:"itemName"`
	Quantity  int           `json:"quantity"`
	DonorName string        `json:"donorName,omitempty"`
	Location  LocationField `json:"location"`
	Status    Status        `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// DonationRecord is a donation after ingestion, with its location resolved
// to a canonical coordinate (nil when unusable).
type DonationRecord struct {
	ID        string      `json:"id"`
	ItemName  string      `json:"itemName"`
	Quantity  int         `json:"quantity"`
	DonorName string      `json:"donorName,omitempty"`
	Location  *Coordinate `json:"location"`
	Status    Status      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// DonationUpdate is a field-level update. Only the status is ever written;
// IfStatus, when set, makes the update conditional on the stored status.
type DonationUpdate struct {
	Status   Status
	IfStatus Status
}

// CollectionSnapshot is the complete donation collection at one store revision.
type CollectionSnapshot struct {
	Revision  uint64             `json:"revision"`
	Documents []DonationDocument `json:"documents"`
	TakenAt   time.Time          `json:"taken_at"`
}

// Snapshot is a collection snapshot after ingestion.
type Snapshot struct {
	Revision   uint64           `json:"revision"`
	Records    []DonationRecord `json:"records"`
	ReceivedAt time.Time        `json:"received_at"`
}

// Find returns the record with the given id.
func (s Snapshot) Find(id string) (DonationRecord, bool) {
	for _, r := range s.Records {
		if r.ID == id {
			return r, true
		}
	}
	return DonationRecord{}, false
}
