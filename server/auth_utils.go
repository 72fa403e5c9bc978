package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/device-console/gateway"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// sessionCookieName holds the signed pointer to the visitor's Session Marker
	sessionCookieName = "console_session"

	sessionExpiredText = "Your session has expired. Please log in again."
)

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// endSession removes the marker and the cookie pointing at it
func (s *Server) endSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if sessionID != "" {
		if err := s.store.Delete(r.Context(), sessionID); err != nil {
			log.Err(err).Str("session_id", sessionID).Msg("Failed to delete session marker")
		}
		s.guard.Forget(sessionID)
	}
	s.clearSessionCookie(w, r)
}

// handleSessionExpired is the reaction to a renewal failure: the marker is
// removed and the visitor is sent to the login page.
func (s *Server) handleSessionExpired(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	log.Info().Err(err).Str("session_id", sessionID).Str("path", r.URL.Path).Msg("Session expired")
	s.endSession(w, r, sessionID)
	redirectWithError(w, r, RouteLogin, sessionExpiredText)
}

// handleFailure redirects back to path with message, unless err means the session is gone
func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request, m *sessions.Marker, err error, path, message string) {
	if errors.Is(err, gateway.ErrSessionExpired) {
		var id string
		if m != nil {
			id = m.ID
		}
		s.handleSessionExpired(w, r, id, err)
		return
	}
	log.Debug().Err(err).Str("path", r.URL.Path).Msg("Backend operation failed")
	redirectWithError(w, r, path, message)
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	redirectSuccess(w, r, withFlash(path, "error", errorMsg))
}

// redirectWithMessage helper for htmx-aware redirects carrying a success message
func redirectWithMessage(w http.ResponseWriter, r *http.Request, path, msg string) {
	redirectSuccess(w, r, withFlash(path, "message", msg))
}

func withFlash(path, key, value string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
