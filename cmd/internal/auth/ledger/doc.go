// Package ledger is the server-side source of truth for refresh tokens.
//
// Every refresh token the service issues has a row here, keyed by its jti.
// The row's revoked flag is monotonic: once set it never clears, so a
// refresh token can be spent at most once. Rotation is a single
// transaction in which a conditional update revokes the old row and gates
// the insert of its replacement; under concurrent replay exactly one
// caller wins and every other caller observes ErrRevoked.
package ledger
