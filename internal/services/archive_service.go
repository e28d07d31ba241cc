package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/benmeehan/relief-tracker/internal/feed"
	"github.com/benmeehan/relief-tracker/pkg/s3"
	"github.com/rs/zerolog"
)

// ArchiveService writes the donation collection to object storage whenever it
// changed since the last upload, checking every interval and once more on stop.
// Each archive is kept under its revision and copied to "latest.json".
type ArchiveService struct {
	bucket        string
	prefix        string
	interval      time.Duration
	feed          *feed.Feed
	objectStorage s3.ObjectStorageClient
	logger        zerolog.Logger

	lastRevision uint64
	archived     bool

	sub    *feed.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewArchiveService creates an ArchiveService uploading to bucket under prefix.
// objectStorage must already be connected.
func NewArchiveService(bucket, prefix string, interval time.Duration, donations *feed.Feed, objectStorage s3.ObjectStorageClient, logger zerolog.Logger) *ArchiveService {
	return &ArchiveService{
		bucket:        bucket,
		prefix:        prefix,
		interval:      interval,
		feed:          donations,
		objectStorage: objectStorage,
		logger:        logger,
	}
}

// Start makes sure the bucket exists and starts the archive loop.
func (a *ArchiveService) Start() error {
	if a.ctx != nil {
		a.logger.Warn().Msg("ArchiveService is already running")
		return errors.New("archive service is already running")
	}

	a.logger.Info().Msg("Starting ArchiveService...")
	ctx, cancel := context.WithCancel(context.Background())

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer setupCancel()
	if err := a.objectStorage.EnsureBucket(setupCtx, a.bucket); err != nil {
		cancel()
		a.logger.Error().Err(err).Str("bucket", a.bucket).Msg("Failed to prepare archive bucket")
		return err
	}

	sub, err := a.feed.Open(ctx)
	if err != nil {
		cancel()
		a.logger.Error().Err(err).Msg("Failed to open donation feed")
		return fmt.Errorf("archive: %w", err)
	}
	a.sub, a.ctx, a.cancel = sub, ctx, cancel

	a.wg.Add(1)
	go a.runArchiveLoop()

	a.logger.Info().Str("bucket", a.bucket).Str("prefix", a.prefix).Msg("ArchiveService started successfully")
	return nil
}

func (a *ArchiveService) runArchiveLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.archive(a.ctx); err != nil {
				a.logger.Error().Err(err).Msg("Failed to archive donations")
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// archive uploads the current snapshot if its revision was not archived yet.
func (a *ArchiveService) archive(ctx context.Context) error {
	snap, ok := a.sub.Current()
	if !ok || (a.archived && snap.Revision == a.lastRevision) {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	name := path.Join(a.prefix, strconv.FormatUint(snap.Revision, 10)+".json")
	size, err := a.objectStorage.PutObject(ctx, a.bucket, name, data, "application/json")
	if err != nil {
		return err
	}
	if _, err := a.objectStorage.PutObject(ctx, a.bucket, path.Join(a.prefix, "latest.json"), data, "application/json"); err != nil {
		return err
	}

	a.lastRevision, a.archived = snap.Revision, true
	a.logger.Info().
		Str("object", name).
		Int64("size", size).
		Int("records", len(snap.Records)).
		Msg("Donations archived")
	return nil
}

// Stop ends the loop, archives a final time and closes the feed subscription.
func (a *ArchiveService) Stop() error {
	if a.ctx == nil {
		a.logger.Warn().Msg("ArchiveService is not running")
		return errors.New("archive service is not running")
	}

	a.logger.Info().Msg("Stopping ArchiveService...")
	a.cancel()
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := a.archive(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Final archive failed")
	}

	a.sub.Close()
	a.logger.Info().Msg("ArchiveService stopped successfully")
	return err
}
