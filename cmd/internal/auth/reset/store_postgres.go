package reset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (password_resets).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed reset store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("reset: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Create inserts a reset token row.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_resets (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, rec.TokenHash, rec.UserID, rec.CreatedAt, rec.ExpiresAt)
	return err
}

// Consume deletes the row and returns it, in one statement. The DELETE's
// WHERE clause is the single-use guarantee: a second consume matches
// nothing.
func (s *PostgresStore) Consume(ctx context.Context, tokenHash string, now time.Time) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, `
		DELETE FROM password_resets
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING token_hash, user_id, created_at, expires_at
	`, tokenHash, now).Scan(&rec.TokenHash, &rec.UserID, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrInvalidToken
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// PruneExpired deletes rows past their expiry.
func (s *PostgresStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM password_resets
		WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
