// Package client is a small Go SDK for the gate HTTP API.
//
// A Client keeps the token pair from the last successful Login or
// Refresh and attaches the access token as a Bearer header to
// authenticated calls. When a call comes back 401 the client rotates
// the refresh token once and retries; concurrent rotations of the same
// refresh token are coalesced so only one request hits the server.
package client
