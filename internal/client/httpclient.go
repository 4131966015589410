package client

import (
	"fmt"
	"net"
	"net/http"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
)

// CreateOptimizedTransport returns an HTTP transport with connection pool
// settings tuned for repeated calls to the same upstream host.
func CreateOptimizedTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewUpstreamClient creates the HTTP client used for calls to external
// identity providers.
func NewUpstreamClient(timeout time.Duration) (*http.Client, error) {
	c, err := httpclient.NewClient(
		httpclient.WithTimeout(timeout),
		httpclient.WithTransport(CreateOptimizedTransport()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream HTTP client: %w", err)
	}
	return c, nil
}
