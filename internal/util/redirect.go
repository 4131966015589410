package util

import (
	"net/url"
	"strings"
)

// IsRedirectSafe reports whether a post-login redirect target is safe to
// follow. Only same-site relative paths are accepted: anything with a
// scheme, host, protocol-relative prefix, backslash, or control character
// is rejected to prevent open redirects.
func IsRedirectSafe(target string) bool {
	if target == "" || target == "/" {
		return false
	}
	if !strings.HasPrefix(target, "/") {
		return false
	}
	// Protocol-relative URLs ("//evil.com") and backslash tricks
	if strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return false
	}
	// CRLF injection
	if strings.ContainsAny(target, "\r\n") {
		return false
	}

	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
