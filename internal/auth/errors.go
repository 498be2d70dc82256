package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrConflict           = errors.New("auth: conflict")
	ErrStoreUnavailable   = errors.New("auth: backing store unavailable")
)
