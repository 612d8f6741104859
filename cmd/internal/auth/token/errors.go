package token

import "errors"

var (
	// ErrTokenExpired reports a structurally valid, correctly signed token
	// whose expiry is in the past.
	ErrTokenExpired = errors.New("token: expired")

	// ErrTokenInvalid covers every other verification failure: bad
	// signature, malformed payload, wrong kind, wrong issuer, missing
	// claims. Callers get no finer detail on purpose.
	ErrTokenInvalid = errors.New("token: invalid")
)
