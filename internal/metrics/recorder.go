package metrics

import "time"

// Recorder receives domain events for monitoring. The Prometheus
// implementation is used when metrics are enabled, the noop one otherwise.
type Recorder interface {
	// Authorization code flow
	RecordAuthorizeRequest(result string) // login_redirect, consent, code_issued, error
	RecordCodeIssued(success bool)
	RecordCodeExchange(result string) // success, invalid_grant, invalid_client, error

	// Tokens
	RecordTokenIssued(tokenType, grantType string)
	RecordTokenRefresh(success bool)
	RecordTokenValidation(result string) // valid, expired, invalid

	// First-party authentication
	RecordLogin(authSource string, success bool)
	RecordLogout()
	RecordOTPRequest(result string) // sent, cooldown, skipped, error
	RecordPasswordReset(success bool)

	// HTTP server
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	IncHTTPInFlight()
	DecHTTPInFlight()
}
