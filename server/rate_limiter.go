package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	visitorTTL          = 3 * time.Minute
	visitorSweepPeriod  = time.Minute
	tooManyAttemptsText = "Too many attempts. Please wait a minute and try again."
)

// visitor tracks the rate limiter and last seen time for an IP
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginRateLimiter throttles login and signup submissions per client IP
type LoginRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	trusted  []netip.Prefix
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLoginRateLimiter allows perMinute submissions per IP with the given burst.
// A non-positive perMinute disables the limit.
func NewLoginRateLimiter(perMinute, burst int) *LoginRateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	rl := &LoginRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    max(burst, 1),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.cleanupVisitors()
	return rl
}

// Allow reports whether ip may submit now
func (rl *LoginRateLimiter) Allow(ip string) bool {
	return rl.getVisitor(ip).AllowN(rl.now(), 1)
}

// TrustProxies makes ClientIP follow X-Forwarded-For through the given proxies
func (rl *LoginRateLimiter) TrustProxies(proxies []netip.Prefix) {
	rl.trusted = append([]netip.Prefix(nil), proxies...)
}

// ClientIP returns the address a request is limited by. X-Forwarded-For is
// only read when the connection comes from a trusted proxy, and then the
// rightmost hop that is not itself a trusted proxy wins.
func (rl *LoginRateLimiter) ClientIP(r *http.Request) string {
	remote := remoteIP(r)
	if !rl.isTrusted(remote) {
		return remote
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !rl.isTrusted(hop) {
			return hop
		}
	}
	return remote
}

func (rl *LoginRateLimiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Stop ends the background cleanup
func (rl *LoginRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *LoginRateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

func (rl *LoginRateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(visitorSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *LoginRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, ip)
		}
	}
}

// RateLimitMiddleware sends throttled visitors back to the form they submitted
func (s *Server) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next(w, r)
			return
		}
		ip := s.limiter.ClientIP(r)
		if !s.limiter.Allow(ip) {
			log.Warn().Err(consoleerrors.ErrTooManyAttempts).Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			redirectWithError(w, r, r.URL.Path, tooManyAttemptsText)
			return
		}
		next(w, r)
	}
}

// ParseTrustedProxies turns IPs and CIDRs into prefixes
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}
