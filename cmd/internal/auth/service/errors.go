package service

import "errors"

// ErrUnauthorized is the single failure a caller sees for any bad token or
// failed refresh. The specific cause is logged server-side only.
var ErrUnauthorized = errors.New("service: unauthorized")
