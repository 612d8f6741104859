// Package password provides password hashing and verification for Gate.
//
// It implements Argon2id hashing with a PHC-style encoded string format:
// - Configurable Argon2id parameters (via environment variables)
// - Minimal length policy validation
// - Strict hash decoding with anti-DoS parameter bounds during Verify
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes whose parameters exceed reasonable bounds.
package password
