package domain

import "errors"

var (
	// ErrSessionNotFound signals an absent, unregistered or closed session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionIDRequired signals a request missing the session identifier header.
	ErrSessionIDRequired = errors.New("session id required")
)
