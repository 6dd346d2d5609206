package auth

import "errors"

var (
	// ErrUnauthorized is the only rejection the verifier returns. Every
	// failed check collapses to it so callers cannot tell which one failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable means the credential store could not be reached. It is
	// a transport failure, not a verdict on the credential.
	ErrUnavailable = errors.New("credential store unavailable")

	ErrMalformedHeader  = errors.New("malformed authorization header")
	ErrMalformedToken   = errors.New("malformed token")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrInvalidTokenArgs = errors.New("token subject and secret are required")

	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrInvalidHash   = errors.New("invalid password hash")
)
