// Package throttle rate-limits login attempts with fixed-window Redis
// counters keyed by normalized email and by client IP.
//
// Counters only grow on failed attempts, so a legitimate user logging in
// normally never hits the limit; a successful login clears the counters.
// When Redis is down the limiter fails open: losing throttling is better
// than losing login.
package throttle
