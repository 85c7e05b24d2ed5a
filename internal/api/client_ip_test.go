package api

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPResolver(t *testing.T) {
	tests := []struct {
		name      string
		trusted   []string
		remote    string
		forwarded string
		realIP    string
		want      string
	}{
		{
			name:      "direct peer ignores headers",
			remote:    "203.0.113.7:43210",
			forwarded: "198.51.100.5",
			realIP:    "198.51.100.6",
			want:      "203.0.113.7",
		},
		{
			name:      "trusted proxy uses forwarded for",
			trusted:   []string{"172.30.0.10/32"},
			remote:    "172.30.0.10:12345",
			forwarded: "198.51.100.8",
			want:      "198.51.100.8",
		},
		{
			name:      "skips trusted hops from the right",
			trusted:   []string{"10.0.0.0/8"},
			remote:    "10.0.0.2:80",
			forwarded: "1.2.3.4, 198.51.100.9, 10.0.0.5",
			want:      "198.51.100.9",
		},
		{
			name:      "bare IP entry is trusted",
			trusted:   []string{"172.30.0.10"},
			remote:    "172.30.0.10:12345",
			forwarded: "198.51.100.11",
			want:      "198.51.100.11",
		},
		{
			name:      "falls back to real ip",
			trusted:   []string{"172.30.0.10/32"},
			remote:    "172.30.0.10:12345",
			forwarded: "not-an-ip",
			realIP:    "198.51.100.10",
			want:      "198.51.100.10",
		},
		{
			name:   "unparseable peer",
			remote: "garbage",
			want:   "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, err := NewClientIPResolver(tt.trusted)
			if err != nil {
				t.Fatalf("NewClientIPResolver() error = %v", err)
			}

			req := httptest.NewRequest("GET", "http://localhost/test", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := resolver.Resolve(req); got != tt.want {
				t.Fatalf("Resolve() = %q, want %q", got, tt.want)
			}
			if key, _ := resolver.Key(req); key != tt.want {
				t.Fatalf("Key() = %q, want %q", key, tt.want)
			}
		})
	}
}

func TestNewClientIPResolverRejectsBadCIDR(t *testing.T) {
	if _, err := NewClientIPResolver([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("NewClientIPResolver() error = nil, want error")
	}
	if _, err := NewClientIPResolver([]string{"proxy.local"}); err == nil {
		t.Fatal("NewClientIPResolver() error = nil, want error")
	}
}
