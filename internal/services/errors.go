package services

import "errors"

// OAuth protocol errors. The string values double as RFC 6749 error codes,
// so handlers can pass them straight into error responses.
var (
	ErrInvalidClient           = errors.New("invalid_client")
	ErrClientInactive          = errors.New("unauthorized_client")
	ErrInvalidRedirectURI      = errors.New("invalid_redirect_uri")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrAccessDenied            = errors.New("access_denied")
	ErrInvalidRequest          = errors.New("invalid_request")
)

// First-party authentication errors. Credential and OTP failures are
// deliberately generic: they never reveal whether an account exists.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserInactive       = errors.New("account is disabled")
	ErrInvalidOTP         = errors.New("invalid or expired code")
	ErrOTPCooldown        = errors.New("an active code was issued recently")
	ErrNoLocalPassword    = errors.New("account has no local password")
)
