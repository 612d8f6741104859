package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (refresh_tokens).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed ledger store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("ledger: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Persist inserts a new ledger row.
func (s *PostgresStore) Persist(ctx context.Context, rec Record) error {
	if rec.JTI == "" || rec.UserID == "" {
		return fmt.Errorf("ledger: persist: empty jti or user id")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (jti, user_id, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, FALSE)
	`, rec.JTI, rec.UserID, rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Get loads a ledger row by jti regardless of its state.
func (s *PostgresStore) Get(ctx context.Context, jti string) (Record, error) {
	return getRow(ctx, s.pool, jti)
}

// Validate loads the row and checks it is live at now.
func (s *PostgresStore) Validate(ctx context.Context, jti string, now time.Time) (Record, error) {
	rec, err := getRow(ctx, s.pool, jti)
	if err != nil {
		return Record{}, err
	}
	if rec.Revoked {
		return Record{}, ErrRevoked
	}
	if !now.Before(rec.ExpiresAt) {
		return Record{}, ErrExpired
	}
	return rec, nil
}

// Rotate revokes oldJTI and records next in one transaction.
//
// The conditional update is the whole trick: it only matches a row that is
// still live, so of N concurrent rotations of the same jti exactly one
// sees RowsAffected == 1 and gets to insert the replacement. The rest
// classify the row and fail without writing anything.
func (s *PostgresStore) Rotate(ctx context.Context, oldJTI string, next Record, now time.Time) error {
	if oldJTI == "" {
		return ErrNotFound
	}
	if next.JTI == "" || next.UserID == "" {
		return fmt.Errorf("ledger: rotate: empty replacement jti or user id")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, replaced_by = $3
		WHERE jti = $1 AND NOT revoked AND expires_at > $2
	`, oldJTI, now, next.JTI)
	if err != nil {
		return err
	}

	if ct.RowsAffected() == 0 {
		// Lost the race, or the token was never good. Classify for the
		// caller; the tx rolls back either way.
		rec, err := getRow(ctx, tx, oldJTI)
		if err != nil {
			return err
		}
		if rec.Revoked {
			return ErrRevoked
		}
		return ErrExpired
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (jti, user_id, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, FALSE)
	`, next.JTI, next.UserID, next.IssuedAt, next.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}

	return tx.Commit(ctx)
}

// Revoke marks a single token revoked (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, jti string, now time.Time) error {
	if jti == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2)
		WHERE jti = $1
	`, jti, now)
	return err
}

// RevokeAll revokes every live token for a user and reports how many
// tokens flipped.
func (s *PostgresStore) RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2)
		WHERE user_id = $1 AND NOT revoked
	`, userID, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// PruneExpired deletes rows whose expiry has passed. Revoked rows inside
// their lifetime stay so replay of a rotated token keeps reporting
// ErrRevoked rather than ErrNotFound.
func (s *PostgresStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRow(ctx context.Context, q querier, jti string) (Record, error) {
	var rec Record
	err := q.QueryRow(ctx, `
		SELECT jti, user_id, issued_at, expires_at, revoked, revoked_at, replaced_by
		FROM refresh_tokens
		WHERE jti = $1
	`, jti).Scan(
		&rec.JTI,
		&rec.UserID,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.Revoked,
		&rec.RevokedAt,
		&rec.ReplacedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
