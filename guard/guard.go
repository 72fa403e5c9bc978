// Package guard decides whether a visitor may see a protected page
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/device-console/gateway"
	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/rs/zerolog/log"
)

// State is where a check currently stands. Unauthenticated is terminal.
type State int

const (
	StateChecking State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Decision is the outcome of a check. Marker is set only when authenticated.
type Decision struct {
	State  State
	Marker *sessions.Marker
	Reason error
}

// Allowed reports whether the protected page may be rendered
func (d Decision) Allowed() bool {
	return d.State == StateAuthenticated && d.Marker != nil
}

// Mode selects how much the guard trusts the session store
type Mode string

const (
	// ModeLocal trusts a marker being present in the store
	ModeLocal Mode = "local"
	// ModeVerify also asks the backend whether the credentials are still accepted
	ModeVerify Mode = "verify"
)

// Verifier confirms a marker's credentials with the backend
type Verifier interface {
	Verify(ctx context.Context, m *sessions.Marker) error
}

// Option configures a Guard
type Option func(*Guard)

// WithVerifier switches the guard to verify mode. Successful verifications are
// remembered per session for ttl.
func WithVerifier(v Verifier, ttl time.Duration) Option {
	return func(g *Guard) {
		g.mode = ModeVerify
		g.verifier = v
		g.ttl = ttl
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// Guard resolves session markers for protected routes
type Guard struct {
	store    sessions.Store
	mode     Mode
	verifier Verifier
	ttl      time.Duration

	mu       sync.Mutex
	verified map[string]time.Time // sessionID -> verified until
	now      func() time.Time
}

// New creates a guard in local mode unless WithVerifier is given
func New(store sessions.Store, opts ...Option) *Guard {
	g := &Guard{
		store:    store,
		mode:     ModeLocal,
		verified: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mode returns the mode the guard runs in
func (g *Guard) Mode() Mode {
	return g.mode
}

// Check runs a full Checking -> Authenticated/Unauthenticated transition for sessionID
func (g *Guard) Check(ctx context.Context, sessionID string) Decision {
	if sessionID == "" {
		return deny(consoleerrors.ErrSessionNotFound)
	}

	m, err := g.store.Get(ctx, sessionID)
	if err != nil {
		if !consoleerrors.Is(err, consoleerrors.ErrSessionNotFound) {
			log.Err(err).Str("session_id", sessionID).Msg("Session lookup failed")
		}
		return deny(err)
	}

	if g.mode == ModeVerify {
		if err := g.verify(ctx, m); err != nil {
			return deny(err)
		}
	}
	return Decision{State: StateAuthenticated, Marker: m}
}

func (g *Guard) verify(ctx context.Context, m *sessions.Marker) error {
	now := g.now()

	g.mu.Lock()
	until, ok := g.verified[m.ID]
	g.mu.Unlock()
	if ok && now.Before(until) {
		return nil
	}

	err := g.verifier.Verify(ctx, m)
	switch {
	case err == nil:
		g.mu.Lock()
		g.verified[m.ID] = now.Add(g.ttl)
		g.mu.Unlock()
		return nil
	case gateway.IsNetwork(err):
		// Backend unreachable: keep the visitor in, page data calls will surface the outage
		log.Warn().Err(err).Str("session_id", m.ID).Msg("Could not verify session, trusting store")
		return nil
	case consoleerrors.Is(err, gateway.ErrSessionExpired), gateway.StatusCode(err) == 401:
		return consoleerrors.Wrapf(consoleerrors.ErrSessionExpired, "verify session: %v", err)
	default:
		return consoleerrors.Wrapf(consoleerrors.ErrSessionInvalid, "verify session: %v", err)
	}
}

// Forget drops any cached verification for sessionID
func (g *Guard) Forget(sessionID string) {
	g.mu.Lock()
	delete(g.verified, sessionID)
	g.mu.Unlock()
}

// Watch drops cached verifications whenever the store reports a change to a
// session. It blocks until ctx is cancelled.
func (g *Guard) Watch(ctx context.Context) error {
	events, err := g.store.Subscribe(ctx)
	if err != nil {
		return err
	}
	for e := range events {
		g.Forget(e.SessionID)
	}
	return ctx.Err()
}

func deny(reason error) Decision {
	return Decision{State: StateUnauthenticated, Reason: reason}
}
