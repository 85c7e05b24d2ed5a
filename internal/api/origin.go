package api

import (
	"net"
	"net/url"
	"strings"
)

func isOriginAllowed(origin string, allowed []string) bool {
	if isLoopbackOrigin(origin) {
		return true
	}
	for _, candidate := range allowed {
		if originMatchesAllowed(origin, candidate) {
			return true
		}
	}
	return false
}

// originMatchesAllowed supports exact matches and a trailing "*" prefix match.
func originMatchesAllowed(origin, allowed string) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" {
		return false
	}
	if strings.HasSuffix(allowed, "*") {
		return strings.HasPrefix(origin, strings.TrimSuffix(allowed, "*"))
	}
	return origin == allowed
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
