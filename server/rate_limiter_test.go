package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoginRateLimiter(t *testing.T) {
	rl := NewLoginRateLimiter(60, 2)
	defer rl.Stop()

	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("10.0.0.1"))
	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))
	require.True(t, rl.Allow("10.0.0.2"), "limits are per ip")

	now = now.Add(time.Second)
	require.True(t, rl.Allow("10.0.0.1"), "one token per second at 60 per minute")

	now = now.Add(visitorTTL + time.Second)
	rl.sweep()
	rl.mu.Lock()
	require.Empty(t, rl.visitors)
	rl.mu.Unlock()

	rl.Stop() // second stop is a no-op
}

func TestLoginRateLimiter_Disabled(t *testing.T) {
	rl := NewLoginRateLimiter(0, 1)
	defer rl.Stop()
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestClientIP(t *testing.T) {
	rl := NewLoginRateLimiter(60, 1)
	defer rl.Stop()

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "192.0.2.1:5123"
	require.Equal(t, "192.0.2.1", rl.ClientIP(r))

	t.Run("untrusted peer header is ignored", func(t *testing.T) {
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
		require.Equal(t, "192.0.2.1", rl.ClientIP(r))
	})

	t.Run("trusted proxy", func(t *testing.T) {
		proxies, err := ParseTrustedProxies([]string{"192.0.2.1", "10.0.0.0/8"})
		require.NoError(t, err)
		rl.TrustProxies(proxies)

		r.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9, 10.1.2.3")
		require.Equal(t, "203.0.113.9", rl.ClientIP(r), "rightmost untrusted hop")

		r.Header.Del("X-Forwarded-For")
		require.Equal(t, "192.0.2.1", rl.ClientIP(r))
	})
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"not-an-ip"})
	require.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	require.Error(t, err)
}

func TestRateLimitMiddleware_IgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewLoginRateLimiter(1, 1)
	defer rl.Stop()
	s := &Server{limiter: rl}

	allowed := 0
	h := s.RateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) {
		allowed++
		w.WriteHeader(http.StatusOK)
	})

	for i := range 20 {
		r := httptest.NewRequest(http.MethodPost, RouteLogin, nil)
		r.RemoteAddr = "192.0.2.50:40000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		w := httptest.NewRecorder()
		h(w, r)
		if i > 0 {
			require.Equal(t, http.StatusSeeOther, w.Code)
			require.Contains(t, w.Header().Get("Location"), "error=")
		}
	}
	require.Equal(t, 1, allowed)
}
