package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HomePageData is the model for the dashboard home page
type HomePageData struct {
	Username string
}

// DashboardHandler renders the dashboard home page
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data HomePageData
		if m := markerFrom(r); m != nil {
			data.Username = m.User.Username
		}
		s.renderDashboardPage(w, r, "home", "Home", "home_content.html", data)
	}
}

// HealthHandler reports liveness and how the guard is configured
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status":     "ok",
			"guard_mode": string(s.guard.Mode()),
		}); err != nil {
			log.Err(err).Msg("Failed to write health response")
		}
	}
}
