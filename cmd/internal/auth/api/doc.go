// Package authapi exposes the auth service over HTTP.
//
// It owns the request/response shapes, the cookie transport for browser
// clients, and the guard middleware that authenticates requests. Error
// responses are deliberately coarse: every flavor of bad credential or
// bad token is the same 401.
package authapi
