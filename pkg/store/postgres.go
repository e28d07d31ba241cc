package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const notifyChannel = "donations_changed"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS donations (
		id UUID PRIMARY KEY,
		item_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		donor_name TEXT,
		location JSONB,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS donation_revision (
		id BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
		revision BIGINT NOT NULL
	);`,
	`INSERT INTO donation_revision (id, revision)
	VALUES (TRUE, 0)
	ON CONFLICT (id) DO NOTHING;`,
}

// PostgresStore keeps the donation collection in PostgreSQL. Every write bumps
// a single-row revision counter in the same transaction and notifies
// listeners; a LISTEN connection reloads the collection and fans it out.
//
// Notifications that arrive while a reload is running may be coalesced into
// one snapshot; revisions never reach a subscriber out of order or twice.
type PostgresStore struct {
	pool        *pgxpool.Pool
	logger      zerolog.Logger
	subscribers *fanOut

	listenOnce sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewPostgresStore connects to databaseURL and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}

	s := &PostgresStore{
		pool:        pool,
		logger:      logger,
		subscribers: newFanOut(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}
	return nil
}

// Create inserts a new document.
func (s *PostgresStore) Create(ctx context.Context, doc models.DonationDocument) (string, error) {
	doc.ID = uuid.New().String()

	location, err := json.Marshal(doc.Location)
	if err != nil {
		return "", fmt.Errorf("create donation: encode location: %w", err)
	}

	var donor *string
	if doc.DonorName != "" {
		donor = &doc.DonorName
	}

	err = s.write(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		INSERT INTO donations (id, item_name, quantity, donor_name, location, status, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7);
		`, doc.ID, doc.ItemName, doc.Quantity, donor, string(location), string(doc.Status), doc.CreatedAt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create donation: %w", err)
	}
	return doc.ID, nil
}

// Update sets the status of one document. The precondition is checked by the
// UPDATE itself, so concurrent writers on the same row cannot both succeed.
func (s *PostgresStore) Update(ctx context.Context, id string, update models.DonationUpdate) error {
	err := s.write(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
		UPDATE donations
		SET status = $2
		WHERE id = $1
			AND ($3 = '' OR status = $3);
		`, id, string(update.Status), string(update.IfStatus))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM donations WHERE id = $1);`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrNotFound
		}
		return ErrPreconditionFailed
	})
	if err != nil {
		return fmt.Errorf("update donation %s: %w", id, err)
	}
	return nil
}

// Get loads one document.
func (s *PostgresStore) Get(ctx context.Context, id string) (models.DonationDocument, error) {
	row := s.pool.QueryRow(ctx, `
	SELECT id::text, item_name, quantity, donor_name, location, status, created_at
	FROM donations
	WHERE id = $1;
	`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DonationDocument{}, fmt.Errorf("get donation %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.DonationDocument{}, fmt.Errorf("get donation %s: %w", id, err)
	}
	return doc, nil
}

// Subscribe delivers the current collection to handler, then one snapshot per
// observed revision until unsubscribed.
func (s *PostgresStore) Subscribe(handler SnapshotHandler) (func(), error) {
	if handler == nil {
		return nil, errors.New("subscribe: handler is nil")
	}

	s.listenOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.listen()
		}()
	})

	unsubscribe, err := s.subscribers.subscribe(handler, s.load)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return unsubscribe, nil
}

// Close stops the listener and closes the pool.
func (s *PostgresStore) Close() {
	s.cancel()
	s.wg.Wait()
	s.pool.Close()
}

func (s *PostgresStore) write(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	var revision int64
	if err := tx.QueryRow(ctx, `
	UPDATE donation_revision
	SET revision = revision + 1
	RETURNING revision;
	`).Scan(&revision); err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2);`, notifyChannel, strconv.FormatInt(revision, 10)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) listen() {
	backoff := 200 * time.Millisecond
	for {
		err := s.listenSession(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Dur("retry_in", backoff).Msg("Donation listener lost, reconnecting")

		timer := time.NewTimer(backoff)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func (s *PostgresStore) listenSession(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// Catch up on anything committed while no listener was attached.
	if err := s.reloadAndFanOut(ctx); err != nil {
		return err
	}

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		if err := s.reloadAndFanOut(ctx); err != nil {
			return err
		}
	}
}

func (s *PostgresStore) reloadAndFanOut(ctx context.Context) error {
	return s.subscribers.publish(func() (models.CollectionSnapshot, error) {
		return s.loadSnapshot(ctx)
	})
}

func (s *PostgresStore) load() (models.CollectionSnapshot, error) {
	return s.loadSnapshot(s.ctx)
}

func (s *PostgresStore) loadSnapshot(ctx context.Context) (models.CollectionSnapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return models.CollectionSnapshot{}, fmt.Errorf("load snapshot: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var revision int64
	if err := tx.QueryRow(ctx, `SELECT revision FROM donation_revision WHERE id;`).Scan(&revision); err != nil {
		return models.CollectionSnapshot{}, fmt.Errorf("load snapshot: read revision: %w", err)
	}

	rows, err := tx.Query(ctx, `
	SELECT id::text, item_name, quantity, donor_name, location, status, created_at
	FROM donations
	ORDER BY created_at, id;
	`)
	if err != nil {
		return models.CollectionSnapshot{}, fmt.Errorf("load snapshot: query donations: %w", err)
	}
	defer rows.Close()

	docs := make([]models.DonationDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return models.CollectionSnapshot{}, fmt.Errorf("load snapshot: scan row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return models.CollectionSnapshot{}, fmt.Errorf("load snapshot: row iteration: %w", err)
	}

	return models.CollectionSnapshot{
		Revision:  uint64(revision),
		Documents: docs,
		TakenAt:   time.Now(),
	}, nil
}

func scanDocument(row pgx.Row) (models.DonationDocument, error) {
	var (
		doc      models.DonationDocument
		donor    *string
		location []byte
		status   string
	)
	if err := row.Scan(&doc.ID, &doc.ItemName, &doc.Quantity, &donor, &location, &status, &doc.CreatedAt); err != nil {
		return models.DonationDocument{}, err
	}
	if donor != nil {
		doc.DonorName = *donor
	}
	if len(location) > 0 {
		// LocationField never fails on shape; only broken JSON gets here.
		if err := json.Unmarshal(location, &doc.Location); err != nil {
			doc.Location = models.LocationField{Kind: models.LocationMalformed}
		}
	}
	doc.Status = models.Status(status)
	return doc, nil
}
