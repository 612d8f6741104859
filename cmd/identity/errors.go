package identity

import "errors"

// Sentinel errors with a stable contract for callers and tests.
var (
	// ErrDuplicateEmail is returned when a case-insensitively matching email row exists.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials is returned for unknown email AND wrong password alike.
	// The two cases must stay indistinguishable to callers (enumeration resistance).
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound is returned when a user id does not map to a row.
	ErrNotFound = errors.New("user not found")

	// ErrInvalidInput is returned for missing or malformed input.
	ErrInvalidInput = errors.New("invalid input")
)
