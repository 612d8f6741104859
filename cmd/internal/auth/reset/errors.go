package reset

import "errors"

// ErrInvalidToken covers every way a reset token can fail: unknown,
// expired, already used. Callers get no finer detail.
var ErrInvalidToken = errors.New("reset: invalid token")
