package state_managers

import (
	"sync"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/file"
	"github.com/rs/zerolog"
)

// donationState is the on-disk layout of the collection file.
type donationState struct {
	Donations []models.DonationDocument `json:"donations"`
}

// DonationStateManager handles file-based persistence of the donation collection
type DonationStateManager struct {
	filePath   string
	fileClient file.FileOperations
	logger     zerolog.Logger
	mu         sync.Mutex
}

// NewDonationStateManager initializes a new DonationStateManager
func NewDonationStateManager(filePath string, fileClient file.FileOperations, logger zerolog.Logger) *DonationStateManager {
	return &DonationStateManager{
		filePath:   filePath,
		fileClient: fileClient,
		logger:     logger,
	}
}

// Load reads the collection from the state file. A missing file is an empty collection.
func (sm *DonationStateManager) Load() ([]models.DonationDocument, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	exists, err := sm.fileClient.IsFileExists(sm.filePath)
	if err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to stat state file")
		return nil, err
	}
	if !exists {
		return []models.DonationDocument{}, nil
	}

	var state donationState
	if err := sm.fileClient.ReadJsonFile(sm.filePath, &state); err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to read state file")
		return nil, err
	}
	if state.Donations == nil {
		state.Donations = []models.DonationDocument{}
	}
	return state.Donations, nil
}

// Save writes the whole collection to the state file
func (sm *DonationStateManager) Save(docs []models.DonationDocument) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.fileClient.WriteJsonFile(sm.filePath, donationState{Donations: docs}); err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to write state file")
		return err
	}
	return nil
}
