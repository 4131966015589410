package store

import "errors"

var (
	// ErrRecordNotFound is returned when a lookup matches nothing.
	ErrRecordNotFound = errors.New("record not found")

	// ErrEmailConflict is returned when creating a user with an email that
	// already exists.
	ErrEmailConflict = errors.New("email already registered")

	// ErrAuthCodeAlreadyUsed is returned when an authorization code has
	// already been consumed by a concurrent or earlier exchange.
	ErrAuthCodeAlreadyUsed = errors.New("authorization code already used")
)
