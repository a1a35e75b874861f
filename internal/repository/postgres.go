package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/models"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(ctx context.Context, dbURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse db url: %w", err)
	}

	if maxConnStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxConnStr != "" {
		if maxConn, err := strconv.Atoi(maxConnStr); err == nil {
			config.MaxConns = int32(maxConn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Repository{db: pool}, nil
}

func (r *Repository) Close() {
	r.db.Close()
}

// IsUniqueViolation reports whether err is a Postgres unique-violation.
// Ingestion treats these as "already processed".
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// GetDeriverCheckpoint returns the cursor for a bus-subscribed deriver.
// A missing row means the deriver has never run: zero time, empty id.
func (r *Repository) GetDeriverCheckpoint(ctx context.Context, name string) (time.Time, models.EventID, error) {
	var at time.Time
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT last_at, last_event_id FROM deriver_checkpoints WHERE name = $1`, name,
	).Scan(&at, &id)
	if isNoRows(err) {
		return time.Time{}, "", nil
	}
	if err != nil {
		return time.Time{}, "", err
	}
	return at, models.EventID(id), nil
}

func (r *Repository) UpdateDeriverCheckpoint(ctx context.Context, name string, at time.Time, id models.EventID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO deriver_checkpoints (name, last_at, last_event_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE SET
			last_at = EXCLUDED.last_at,
			last_event_id = EXCLUDED.last_event_id,
			updated_at = EXCLUDED.updated_at`,
		name, at, string(id),
	)
	return err
}

// LogIndexingError records a failed item with enough detail to replay it.
func (r *Repository) LogIndexingError(ctx context.Context, worker string, eventID models.EventID, errType, message string, payload any) error {
	var raw []byte
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO indexing_errors (worker, event_id, error_type, message, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		worker, string(eventID), errType, message, raw,
	)
	return err
}
