// Package identity implements Gate's user identity foundation.
//
// It owns user records and credential verification: registration with
// case-insensitive email uniqueness, Argon2id password hashing, and an
// enumeration-resistant verify operation.
//
// Transport and session concerns are intentionally out of scope here.
package identity
