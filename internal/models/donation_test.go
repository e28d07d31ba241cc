package models_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationField_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.LocationField
	}{
		{"null", `null`, models.LocationField{}},
		{"empty string", `""`, models.LocationField{}},
		{"legacy string", `"9.70, 123.89"`, models.LegacyLocation("9.70, 123.89")},
		{"structured", `{"latitude": 9.7, "longitude": 123.89}`, models.StructuredLocation(9.7, 123.89)},
		{"short keys", `{"lat": 9.7, "lng": 123.89}`, models.StructuredLocation(9.7, 123.89)},
		{"non-numeric latitude", `{"latitude": "north", "longitude": 123.89}`, models.LocationField{Kind: models.LocationMalformed, Raw: `{"latitude": "north", "longitude": 123.89}`}},
		{"null latitude", `{"latitude": null, "longitude": 123.89}`, models.LocationField{Kind: models.LocationMalformed, Raw: `{"latitude": null, "longitude": 123.89}`}},
		{"missing longitude", `{"latitude": 9.7}`, models.LocationField{Kind: models.LocationMalformed, Raw: `{"latitude": 9.7}`}},
		{"number", `42`, models.LocationField{Kind: models.LocationMalformed, Raw: `42`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got models.LocationField
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDonationDocument_MalformedLocationDoesNotFailDocument(t *testing.T) {
	raw := `{"id":"a1","itemName":"Rice","quantity":3,"location":[1,2],"status":"In Transit","createdAt":"2024-05-01T10:00:00Z"}`

	var doc models.DonationDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.Equal(t, "Rice", doc.ItemName)
	assert.Equal(t, models.StatusInTransit, doc.Status)
	assert.Equal(t, models.LocationMalformed, doc.Location.Kind)
}

func TestLocationField_KeepsEncodingOnWrite(t *testing.T) {
	legacy, err := json.Marshal(models.LegacyLocation("9.70,123.89"))
	require.NoError(t, err)
	assert.JSONEq(t, `"9.70,123.89"`, string(legacy))

	structured, err := json.Marshal(models.StructuredLocation(9.7, 123.89))
	require.NoError(t, err)
	assert.JSONEq(t, `{"latitude":9.7,"longitude":123.89}`, string(structured))

	absent, err := json.Marshal(models.LocationField{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(absent))
}

func TestValidationError_MatchesSentinel(t *testing.T) {
	var err error = &models.ValidationError{Field: "quantity", Message: "quantity is required"}

	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Equal(t, "quantity: quantity is required", err.Error())

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "quantity", verr.Field)
}

func TestSnapshot_Find(t *testing.T) {
	snap := models.Snapshot{Records: []models.DonationRecord{{ID: "a"}, {ID: "b", ItemName: "Water"}}}

	rec, ok := snap.Find("b")
	assert.True(t, ok)
	assert.Equal(t, "Water", rec.ItemName)

	_, ok = snap.Find("c")
	assert.False(t, ok)
}
