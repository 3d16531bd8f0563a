package session

import "errors"

// Sentinel errors for session handling.
var (
	// ErrNoToken indicates no bearer token is currently available.
	ErrNoToken = errors.New("session: no token available")

	// ErrTokenExpired indicates the client-side expiry check rejected
	// the current token.
	ErrTokenExpired = errors.New("session: token expired")
)
