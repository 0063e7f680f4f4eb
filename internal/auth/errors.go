package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for every authentication failure,
	// whether the user does not exist or the password is wrong. Callers
	// must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingToken is returned when no credential could be extracted
	// from a request.
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned when a token fails signature or
	// structural validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's expiry claim is in the
	// past. Handlers collapse it into the same 401 as ErrInvalidToken.
	ErrTokenExpired = errors.New("token expired")
)
