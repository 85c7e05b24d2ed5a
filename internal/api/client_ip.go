package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIPResolver picks the address rate limits are keyed on. Forwarding
// headers count only when the direct peer is a trusted proxy.
type ClientIPResolver struct {
	trusted []*net.IPNet
}

func NewClientIPResolver(trustedProxyCIDRs []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}

	for _, raw := range trustedProxyCIDRs {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}

		if !strings.Contains(value, "/") {
			ip := net.ParseIP(value)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", value)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			value = fmt.Sprintf("%s/%d", ip.String(), bits)
		}

		_, network, err := net.ParseCIDR(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", value, err)
		}
		resolver.trusted = append(resolver.trusted, network)
	}

	return resolver, nil
}

// Resolve walks X-Forwarded-For from the right and returns the first hop
// that is not a trusted proxy.
func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer := hostIP(req.RemoteAddr)
	if peer == nil {
		return "unknown"
	}
	if !r.isTrusted(peer) {
		return peer.String()
	}

	hops := strings.Split(req.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := hostIP(hops[i])
		if ip == nil {
			continue
		}
		if !r.isTrusted(ip) {
			return ip.String()
		}
	}

	if ip := hostIP(req.Header.Get("X-Real-IP")); ip != nil {
		return ip.String()
	}
	return peer.String()
}

// Key adapts Resolve to the httprate key function signature.
func (r *ClientIPResolver) Key(req *http.Request) (string, error) {
	return r.Resolve(req), nil
}

func (r *ClientIPResolver) isTrusted(ip net.IP) bool {
	for _, network := range r.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// hostIP accepts a bare IP, a host:port pair, or a quoted form of either.
func hostIP(value string) net.IP {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return nil
	}
	if ip := net.ParseIP(value); ip != nil {
		return ip
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		return net.ParseIP(strings.Trim(host, "[]"))
	}
	return nil
}
