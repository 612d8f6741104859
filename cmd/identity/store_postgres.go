package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gate/cmd/security/password"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	hasher password.Config

	// dummyHash is verified against on the unknown-email path so that a
	// missing account costs the same as a wrong password.
	dummyHash string
}

// NewPostgresStore constructs a PostgresStore. Hashing parameters are
// captured once at construction (env + defaults) so all rows in one process
// share a cost profile.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}

	hasher, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	dummy, err := hasher.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}

	return &PostgresStore{pool: pool, hasher: hasher, dummyHash: dummy}, nil
}

// Register normalizes the email, hashes the password, and inserts the row.
// Uniqueness is enforced by the database (unique index on lower(email)), not
// by a racy pre-check.
func (s *PostgresStore) Register(ctx context.Context, email, plainPassword string, now time.Time) (User, error) {
	emailNorm := NormalizeEmail(email)
	if emailNorm == "" || !ValidEmail(emailNorm) {
		return User{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if strings.TrimSpace(plainPassword) == "" {
		return User{}, fmt.Errorf("%w: password", ErrInvalidInput)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return User{}, err
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, emailNorm, hash, now)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}

	return User{ID: id, Email: emailNorm, PasswordHash: hash, CreatedAt: now}, nil
}

// Verify looks up the user by normalized email and compares the password.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *PostgresStore) Verify(ctx context.Context, email, plainPassword string) (User, error) {
	emailNorm := NormalizeEmail(email)
	if emailNorm == "" || plainPassword == "" {
		// Still burn a hash so empty input is not a timing shortcut.
		_, _ = s.hasher.Verify(s.dummyHash, plainPassword)
		return User{}, ErrInvalidCredentials
	}

	u, err := s.GetByEmail(ctx, emailNorm)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = s.hasher.Verify(s.dummyHash, plainPassword)
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	ok, err := s.hasher.Verify(u.PasswordHash, plainPassword)
	if err != nil || !ok {
		return User{}, ErrInvalidCredentials
	}

	return u, nil
}

// GetByID loads a user row by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	return s.getOne(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id)
}

// GetByEmail loads a user row by normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.getOne(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`, NormalizeEmail(email))
}

// UpdatePassword replaces the stored hash for a user (reset flow only).
func (s *PostgresStore) UpdatePassword(ctx context.Context, id, plainPassword string, now time.Time) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id", ErrInvalidInput)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return err
	}

	ct, err := s.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, password_changed_at = $3
		WHERE id = $1
	`, id, hash, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) getOne(ctx context.Context, query, arg string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
