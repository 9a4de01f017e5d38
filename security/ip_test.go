package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xff               string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "203.0.113.5:4321",
			want:       "203.0.113.5",
		},
		{
			name:       "headers ignored without trust",
			remoteAddr: "203.0.113.5:4321",
			xff:        "198.51.100.1",
			xRealIP:    "198.51.100.2",
			want:       "203.0.113.5",
		},
		{
			name:       "single proxy xff",
			remoteAddr: "10.0.0.1:80",
			xff:        "198.51.100.1",
			trustProxy: true,
			want:       "198.51.100.1",
		},
		{
			name:              "two trusted proxies",
			remoteAddr:        "10.0.0.1:80",
			xff:               "198.51.100.1, 10.0.0.2, 10.0.0.3",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "198.51.100.1",
		},
		{
			name:       "client before proxy entry",
			remoteAddr: "10.0.0.1:80",
			xff:        "198.51.100.1, 10.0.0.2",
			trustProxy: true,
			want:       "198.51.100.1",
		},
		{
			name:       "invalid xff falls through to real ip",
			remoteAddr: "10.0.0.1:80",
			xff:        "not-an-ip",
			xRealIP:    "198.51.100.9",
			trustProxy: true,
			want:       "198.51.100.9",
		},
		{
			name:       "invalid everything falls back to remote addr",
			remoteAddr: "10.0.0.1:80",
			xff:        "not-an-ip",
			xRealIP:    "also-not-an-ip",
			trustProxy: true,
			want:       "10.0.0.1",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xRealIP != "" {
				r.Header.Set("X-Real-IP", tc.xRealIP)
			}

			if got := GetClientIP(r, tc.trustProxy, tc.trustedProxyCount); got != tc.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
