// Package reset implements the forgot-password flow.
//
// A reset token is a one-shot random secret mailed to the account owner.
// Only its SHA-256 hash is stored; consumption is a single conditional
// update so a token spends exactly once even under concurrent confirms.
// Requesting a reset for an unknown email succeeds silently, the same as
// for a known one.
package reset
