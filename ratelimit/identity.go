package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownIdentifier is the shared-fate bucket used when no client identity
// can be resolved. Limiting degrades rather than crashing.
const UnknownIdentifier = "unknown"

// ClientIdentifier resolves the identity a request is limited under.
// Resolution order: CDN-injected client IP, first X-Forwarded-For hop,
// direct peer address, then the authenticated user id; first non-empty
// wins.
func ClientIdentifier(r *http.Request, userID string) string {
	if r != nil {
		if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
			return ip
		}
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			// Only the first hop; later entries are appended by proxies
			// under client control.
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if first != "" {
				return first
			}
		}
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
	}
	if userID != "" {
		return userID
	}
	return UnknownIdentifier
}
