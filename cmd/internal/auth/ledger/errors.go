package ledger

import "errors"

var (
	// ErrNotFound reports a jti with no ledger row. Tokens signed by a
	// previous deployment or forged with a valid key land here.
	ErrNotFound = errors.New("ledger: token not found")

	// ErrRevoked reports a row whose revoked flag is set. Spent-twice
	// tokens and explicitly revoked tokens are indistinguishable.
	ErrRevoked = errors.New("ledger: token revoked")

	// ErrExpired reports a row past its expiry. Kept distinct from
	// ErrRevoked so pruning and auditing can tell them apart; callers
	// at the HTTP boundary collapse both to 401.
	ErrExpired = errors.New("ledger: token expired")

	// ErrConflict reports an insert with a jti that already exists.
	ErrConflict = errors.New("ledger: duplicate jti")
)
