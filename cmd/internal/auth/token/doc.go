// Package token mints and verifies the signed bearer tokens that carry a
// session across requests.
//
// Two token kinds share one wire format (JWT, HS256): short-lived access
// tokens that are verified statelessly on every request, and long-lived
// refresh tokens that additionally carry a random jti so the server-side
// ledger can revoke them individually. The kind is pinned in a "typ" claim
// and checked on verify, so a refresh token can never pass as an access
// token or vice versa.
package token
