package ratelimiter

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// KeyFunc extracts the bucket key from a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// UserOrIP keys by the authenticated user and falls back to the client IP.
func UserOrIP(userID func(context.Context) (uuid.UUID, bool)) KeyFunc {
	return func(r *http.Request) string {
		if userID != nil {
			if id, ok := userID(r.Context()); ok {
				return "user:" + id.String()
			}
		}
		if ip := ClientIP(r); ip != "" {
			return "ip:" + ip
		}
		return ""
	}
}

// ClientIP returns the caller address, preferring proxy headers in this
// order: CF-Connecting-IP, DO-Connecting-IP, the first valid
// X-Forwarded-For entry, X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	for _, h := range []string{"CF-Connecting-IP", "DO-Connecting-IP"} {
		if ip := parseIP(r.Header.Get(h)); ip != "" {
			return ip
		}
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for ip := range strings.SplitSeq(forwarded, ",") {
			if parsed := parseIP(ip); parsed != "" {
				return parsed
			}
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
