package metrics

import "time"

// NoopMetrics is a no-operation Recorder used when metrics are disabled.
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordAuthorizeRequest(result string)                                 {}
func (n *NoopMetrics) RecordCodeIssued(success bool)                                        {}
func (n *NoopMetrics) RecordCodeExchange(result string)                                     {}
func (n *NoopMetrics) RecordTokenIssued(tokenType, grantType string)                        {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)                                      {}
func (n *NoopMetrics) RecordTokenValidation(result string)                                  {}
func (n *NoopMetrics) RecordLogin(authSource string, success bool)                          {}
func (n *NoopMetrics) RecordLogout()                                                        {}
func (n *NoopMetrics) RecordOTPRequest(result string)                                       {}
func (n *NoopMetrics) RecordPasswordReset(success bool)                                     {}
func (n *NoopMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {}
func (n *NoopMetrics) IncHTTPInFlight()                                                     {}
func (n *NoopMetrics) DecHTTPInFlight()                                                     {}
