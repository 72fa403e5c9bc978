package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/device-console/auth"
	"github.com/rs/zerolog/log"
)

// AuthPageData is the model for the login and signup pages
type AuthPageData struct {
	AppName  string
	Flash    FlashData
	Username string
	Email    string
}

// RootHandler sends visitors to the dashboard, the guard takes it from there
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
	}
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderStandalone(w, "login.html", AuthPageData{
			AppName:  s.config.GetAppName(),
			Flash:    flashFrom(r),
			Username: r.URL.Query().Get("username"),
		})
	}
}

// LoginSubmissionHandler processes the login form (POST /login)
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		username := r.FormValue("username")
		password := r.FormValue("password")

		marker, err := s.auth.Login(r.Context(), username, password)
		if err != nil {
			log.Debug().Err(err).Str("username", username).Msg("Login rejected")
			redirectWithError(w, r, withFlash(RouteLogin, "username", username), auth.Message(err))
			return
		}

		ttl := time.Until(marker.ExpiresAt)
		cookie, err := s.signer.Sign(marker.ID, marker.User.Username, ttl)
		if err != nil {
			log.Err(err).Str("session_id", marker.ID).Msg("Failed to sign session cookie")
			s.endSession(w, r, marker.ID)
			redirectWithError(w, r, RouteLogin, auth.LoginFailedErr.Error())
			return
		}
		s.setSessionCookie(w, r, cookie, ttl)
		redirectSuccess(w, r, RouteDashboard)
	}
}

// SignupPageHandler renders the signup page (GET /signup)
func (s *Server) SignupPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.renderStandalone(w, "signup.html", AuthPageData{
			AppName:  s.config.GetAppName(),
			Flash:    flashFrom(r),
			Username: q.Get("username"),
			Email:    q.Get("email"),
		})
	}
}

// SignupSubmissionHandler creates the account and sends the visitor to the login page
func (s *Server) SignupSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		form := auth.SignupForm{
			Username:        r.FormValue("username"),
			Email:           r.FormValue("email"),
			Password:        r.FormValue("password"),
			ConfirmPassword: r.FormValue("cpassword"),
		}

		msg, err := s.auth.Signup(r.Context(), form)
		if err != nil {
			back := withFlash(withFlash(RouteSignup, "username", form.Username), "email", form.Email)
			redirectWithError(w, r, back, auth.Message(err))
			return
		}
		redirectWithMessage(w, r, RouteLogin, msg)
	}
}

// LogoutHandler ends the backend session and always clears the local one
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			redirectSuccess(w, r, RouteLogin)
			return
		}

		claims, err := s.signer.Parse(cookie.Value)
		if err != nil {
			s.clearSessionCookie(w, r)
			redirectSuccess(w, r, RouteLogin)
			return
		}

		if marker, err := s.store.Get(r.Context(), claims.SessionID); err == nil {
			if err := s.auth.Logout(r.Context(), marker); err != nil {
				log.Err(err).Str("session_id", claims.SessionID).Msg("Logout failed")
			}
		}
		s.endSession(w, r, claims.SessionID)
		redirectSuccess(w, r, RouteLogin)
	}
}
