package mocks

import (
	"context"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/store"
	"github.com/stretchr/testify/mock"
)

// MockDonationStore is a mock implementation of the DonationStore interface
type MockDonationStore struct {
	mock.Mock
}

func (m *MockDonationStore) Create(ctx context.Context, doc models.DonationDocument) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

func (m *MockDonationStore) Update(ctx context.Context, id string, update models.DonationUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockDonationStore) Get(ctx context.Context, id string) (models.DonationDocument, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.DonationDocument), args.Error(1)
}

func (m *MockDonationStore) Subscribe(handler store.SnapshotHandler) (func(), error) {
	args := m.Called(handler)
	if fn := args.Get(0); fn != nil {
		return fn.(func()), args.Error(1)
	}
	return nil, args.Error(1)
}
