package ledger

import (
	"context"
	"time"
)

// Record is one refresh token's ledger row.
type Record struct {
	JTI        string
	UserID     string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	ReplacedBy *string
}

// Live reports whether the record is spendable at now.
func (r Record) Live(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Store persists refresh token records.
//
// Contract:
//   - Persist fails with ErrConflict when the jti already has a row.
//   - Validate returns the record only when it is live at now; otherwise
//     ErrNotFound, ErrRevoked, or ErrExpired.
//   - Rotate atomically revokes oldJTI and records next. When oldJTI is
//     missing, already revoked, or expired, nothing is recorded and the
//     matching sentinel comes back. Concurrent rotations of the same jti
//     produce exactly one success.
//   - Revoke and RevokeAll are idempotent; revoking a revoked or missing
//     token is not an error.
type Store interface {
	Persist(ctx context.Context, rec Record) error
	Get(ctx context.Context, jti string) (Record, error)
	Validate(ctx context.Context, jti string, now time.Time) (Record, error)
	Rotate(ctx context.Context, oldJTI string, next Record, now time.Time) error
	Revoke(ctx context.Context, jti string, now time.Time) error
	RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error)
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}
