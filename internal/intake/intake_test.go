package intake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/benmeehan/relief-tracker/internal/intake"
	"github.com/benmeehan/relief-tracker/internal/mocks"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/location"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		form  intake.Form
		field string
	}{
		{"missing item", intake.Form{ItemName: "  ", Quantity: "3"}, "itemName"},
		{"missing quantity", intake.Form{ItemName: "Rice", Quantity: ""}, "quantity"},
		{"zero quantity", intake.Form{ItemName: "Rice", Quantity: "0"}, "quantity"},
		{"negative quantity", intake.Form{ItemName: "Rice", Quantity: "-2"}, "quantity"},
		{"fractional quantity", intake.Form{ItemName: "Rice", Quantity: "1.5"}, "quantity"},
		{"text quantity", intake.Form{ItemName: "Rice", Quantity: "ten"}, "quantity"},
		{"bad location", intake.Form{ItemName: "Rice", Quantity: "1", Location: "north"}, "location"},
		{"out of range location", intake.Form{ItemName: "Rice", Quantity: "1", Location: "95,10"}, "location"},
		{"valid", intake.Form{ItemName: " Rice ", Quantity: " 4 "}, ""},
		{"valid with location", intake.Form{ItemName: "Rice", Quantity: "4", Location: "10.3, 123.9"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := intake.Validate(tt.form)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestSubmit_InvalidFormNeverWrites(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	svc := intake.NewService(mockStore, nil, zerolog.Nop())

	_, err := svc.Submit(context.Background(), intake.Form{ItemName: "Rice"})

	assert.ErrorIs(t, err, models.ErrValidation)
	mockStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmit_ManualLocationSkipsLocator(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	mockLocator := new(mocks.MockLocationProvider)
	mockStore.On("Create", mock.Anything, mock.MatchedBy(func(doc models.DonationDocument) bool {
		return doc.ItemName == "Blankets" &&
			doc.Quantity == 20 &&
			doc.DonorName == "Ana" &&
			doc.Status == models.StatusPending &&
			doc.Location.Kind == models.LocationStructured &&
			doc.Location.Latitude == 10.3157 &&
			doc.CreatedAt.Location().String() == "UTC"
	})).Return("d1", nil)

	svc := intake.NewService(mockStore, mockLocator, zerolog.Nop())
	res, err := svc.Submit(context.Background(), intake.Form{
		ItemName:  "Blankets",
		Quantity:  "20",
		DonorName: " Ana ",
		Location:  "10.3157,123.8854",
	})

	require.NoError(t, err)
	assert.Equal(t, "d1", res.ID)
	require.NotNil(t, res.Location)
	assert.Equal(t, 123.8854, res.Location.Longitude)
	assert.NoError(t, res.LocationErr)
	mockStore.AssertExpectations(t)
	mockLocator.AssertNotCalled(t, "GetLocation", mock.Anything)
}

func TestSubmit_UsesDevicePosition(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	mockLocator := new(mocks.MockLocationProvider)
	mockLocator.On("GetLocation", mock.Anything).Return(location.Location{Latitude: 14.5995, Longitude: 120.9842}, nil)
	mockStore.On("Create", mock.Anything, mock.MatchedBy(func(doc models.DonationDocument) bool {
		return doc.Location.Kind == models.LocationStructured && doc.Location.Longitude == 120.9842
	})).Return("d2", nil)

	svc := intake.NewService(mockStore, mockLocator, zerolog.Nop())
	res, err := svc.Submit(context.Background(), intake.Form{ItemName: "Water", Quantity: "6"})

	require.NoError(t, err)
	require.NotNil(t, res.Location)
	assert.Equal(t, 14.5995, res.Location.Latitude)
	mockStore.AssertExpectations(t)
}

func TestSubmit_PermissionDeniedStillRecords(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	mockLocator := new(mocks.MockLocationProvider)
	mockLocator.On("GetLocation", mock.Anything).Return(location.Location{}, location.ErrPermissionDenied)
	mockStore.On("Create", mock.Anything, mock.MatchedBy(func(doc models.DonationDocument) bool {
		return doc.Location.Kind == models.LocationAbsent
	})).Return("d3", nil)

	svc := intake.NewService(mockStore, mockLocator, zerolog.Nop())
	res, err := svc.Submit(context.Background(), intake.Form{ItemName: "Soap", Quantity: "3"})

	require.NoError(t, err)
	assert.Equal(t, "d3", res.ID)
	assert.Nil(t, res.Location)
	assert.ErrorIs(t, res.LocationErr, location.ErrPermissionDenied)
}

func TestSubmit_InvalidDevicePositionIsDropped(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	mockLocator := new(mocks.MockLocationProvider)
	mockLocator.On("GetLocation", mock.Anything).Return(location.Location{Latitude: 200, Longitude: 0}, nil)
	mockStore.On("Create", mock.Anything, mock.Anything).Return("d4", nil)

	svc := intake.NewService(mockStore, mockLocator, zerolog.Nop())
	res, err := svc.Submit(context.Background(), intake.Form{ItemName: "Soap", Quantity: "3"})

	require.NoError(t, err)
	assert.Nil(t, res.Location)
	assert.ErrorIs(t, res.LocationErr, location.ErrUnavailable)
}

func TestSubmit_StoreFailure(t *testing.T) {
	mockStore := new(mocks.MockDonationStore)
	mockStore.On("Create", mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	svc := intake.NewService(mockStore, nil, zerolog.Nop())
	_, err := svc.Submit(context.Background(), intake.Form{ItemName: "Rice", Quantity: "1"})

	assert.ErrorIs(t, err, models.ErrStoreWrite)
	assert.ErrorContains(t, err, "disk full")
}
