package server

import (
	"net/http"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/rs/zerolog/log"
)

// RequireSession is middleware for dashboard routes. Nothing is written to the
// response until the guard has decided, so a visitor without a marker never
// sees protected content. The marker is placed in the request context.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				redirectSuccess(w, r, RouteLogin)
				return
			}

			claims, err := s.signer.Parse(cookie.Value)
			if err != nil {
				log.Debug().Err(err).Msg("Rejected session cookie")
				s.clearSessionCookie(w, r)
				redirectSuccess(w, r, RouteLogin)
				return
			}

			decision := s.guard.Check(r.Context(), claims.SessionID)
			if !decision.Allowed() {
				if consoleerrors.Is(decision.Reason, consoleerrors.ErrSessionExpired) {
					s.handleSessionExpired(w, r, claims.SessionID, decision.Reason)
					return
				}
				s.clearSessionCookie(w, r)
				redirectSuccess(w, r, RouteLogin)
				return
			}

			next(w, r.WithContext(sessions.WithMarker(r.Context(), decision.Marker)))
		}
	}
}

// markerFrom returns the marker RequireSession placed in the request context
func markerFrom(r *http.Request) *sessions.Marker {
	m, _ := sessions.FromContext(r.Context())
	return m
}
