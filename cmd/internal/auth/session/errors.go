package session

import "errors"

var (
	// ErrUnauthenticated is returned when the request carries no credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when a credential is present but rejected,
	// or when the principal's role is not allowed.
	ErrForbidden = errors.New("forbidden")
)
