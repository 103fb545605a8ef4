package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

// PostgresStore implements RecordStore on a JSONB document column using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRecording(ctx context.Context, rec *models.Recording) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO recordings (id, user_id, status, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, string(rec.Status), doc, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateKey
	}
	return nil
}

func (s *PostgresStore) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM recordings WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}

	var rec models.Recording
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	return &rec, nil
}

// ApplyUpdate merges the update into the document in one statement, guarded
// by the set of statuses allowed to precede u.Status.
func (s *PostgresStore) ApplyUpdate(ctx context.Context, id string, u models.Update) error {
	now := time.Now().UTC()
	patch, err := json.Marshal(u.Fields(now))
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	preds := models.Predecessors(u.Status)
	allowed := make([]string, len(preds))
	for i, p := range preds {
		allowed[i] = string(p)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE recordings
		 SET doc = doc || $2::jsonb, status = $3, updated_at = $4
		 WHERE id = $1 AND status = ANY($5)`,
		id, patch, string(u.Status), now, allowed)
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM recordings WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get recording status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, u.Status)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ RecordStore = (*PostgresStore)(nil)
