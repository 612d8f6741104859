// Package service orchestrates registration, login, refresh rotation, and
// logout on top of the identity store, the token issuer, and the refresh
// ledger.
//
// It is also the narrowing boundary: the many ways a token or credential
// can be bad (expired, revoked, unknown, forged) collapse here into
// ErrUnauthorized so the HTTP layer cannot leak which check failed.
package service
