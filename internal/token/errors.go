package token

import "errors"

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures, and claims
	// that fail validation.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned for structurally valid tokens past their
	// expiry time.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenType is returned when an access token is presented where a
	// refresh token is expected, or vice versa.
	ErrTokenType = errors.New("unexpected token type")

	// ErrClientMismatch is returned when a refresh token is presented by a
	// client other than the one it was issued to.
	ErrClientMismatch = errors.New("token was issued to a different client")
)
