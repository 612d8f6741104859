package identity

import (
	"context"
	"time"
)

// User is Gate's canonical security principal.
// PasswordHash is the PHC-encoded Argon2id hash; it must never be logged
// or serialized toward a client.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Store is the credential persistence boundary.
//
// Contract:
//   - Register fails with ErrDuplicateEmail when a case-insensitively
//     matching email row exists.
//   - Verify returns the same ErrInvalidCredentials for unknown email and
//     for a failed hash comparison; implementations must also keep the two
//     paths timing-comparable (dummy verify on the missing-user path).
//   - Users are never hard-deleted or mutated by this store, with the single
//     exception of UpdatePassword used by the reset flow.
type Store interface {
	Register(ctx context.Context, email, plainPassword string, now time.Time) (User, error)
	Verify(ctx context.Context, email, plainPassword string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	UpdatePassword(ctx context.Context, id, plainPassword string, now time.Time) error
}
