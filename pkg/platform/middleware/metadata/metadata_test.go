package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openbadges/pkg/requestcontext"
)

func TestClientIP(t *testing.T) {
	behindProxy, err := NewResolver([]string{"10.0.0.0/8", "192.0.2.254"})
	require.NoError(t, err)
	direct, err := NewResolver(nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		resolver *Resolver
		headers  map[string]string
		remote   string
		want     string
	}{
		{"untrusted peer ignores forwarded for", direct, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "198.51.100.9:1234", "198.51.100.9"},
		{"untrusted peer ignores real ip", direct, map[string]string{"X-Real-IP": "203.0.113.7"}, "198.51.100.9:1234", "198.51.100.9"},
		{"trusted proxy takes nearest untrusted hop", behindProxy, map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"trusted single address", behindProxy, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.254:80", "203.0.113.7"},
		{"trusted proxy real ip", behindProxy, map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:1234", "198.51.100.4"},
		{"trusted proxy without headers", behindProxy, nil, "10.0.0.2:1234", "10.0.0.2"},
		{"ipv6 remote addr", direct, nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"empty remote addr", direct, nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.resolver.ClientIP(r))
		})
	}
}

func TestNewResolverRejectsGarbage(t *testing.T) {
	_, err := NewResolver([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = NewResolver([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestClientMetadata(t *testing.T) {
	res, err := NewResolver(nil)
	require.NoError(t, err)

	var ip, ua string
	h := res.ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:80"
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	r.Header.Set("User-Agent", "badgectl/1.0")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.1", ip)
	assert.Equal(t, "badgectl/1.0", ua)
}
