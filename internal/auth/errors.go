package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown usernames and wrong
	// passwords alike; callers must not be able to tell which.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid covers malformed, tampered and revoked tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired is returned when a structurally valid token is past
	// its expiry.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrTokenReuse signals that an already-rotated refresh token was
	// presented again. The whole rotation chain is revoked as a side
	// effect before this error is returned.
	ErrTokenReuse = errors.New("auth: refresh token reuse detected")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
