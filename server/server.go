// Package server is the console's web front end. It renders the pages, keeps
// each visitor's Session Marker behind a signed cookie and reaches the backend
// through the visitor's gateway client.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/device-console/auth"
	"github.com/jrsteele09/device-console/gateway"
	"github.com/jrsteele09/device-console/guard"
	"github.com/jrsteele09/device-console/internal/config"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/jrsteele09/device-console/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Deps are the services the console is built on
type Deps struct {
	Gateway *gateway.Gateway
	Store   sessions.Store
	Auth    *auth.Service
	Guard   *guard.Guard
	Signer  token.Signer
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	gateway *gateway.Gateway
	store   sessions.Store
	auth    *auth.Service
	guard   *guard.Guard
	signer  token.Signer
	limiter *LoginRateLimiter
	pages   *pageTemplates
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("[Server New] config is required")
	case deps.Gateway == nil:
		return nil, errors.New("[Server New] gateway is required")
	case deps.Store == nil:
		return nil, errors.New("[Server New] session store is required")
	case deps.Auth == nil:
		return nil, errors.New("[Server New] auth service is required")
	case deps.Guard == nil:
		return nil, errors.New("[Server New] guard is required")
	case deps.Signer == nil:
		return nil, errors.New("[Server New] cookie signer is required")
	}

	pages, err := parsePageTemplates()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}

	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		gateway: deps.Gateway,
		store:   deps.Store,
		auth:    deps.Auth,
		guard:   deps.Guard,
		signer:  deps.Signer,
		pages:   pages,
	}
	if cfg.GetEnableRateLimiting() {
		proxies, err := ParseTrustedProxies(cfg.GetTrustedProxies())
		if err != nil {
			return nil, fmt.Errorf("[Server New] %w", err)
		}
		s.limiter = NewLoginRateLimiter(cfg.GetLoginRatePerMinute(), cfg.GetLoginBurst())
		s.limiter.TrustProxies(proxies)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// WatchSessions keeps the guard's verification cache in step with the session
// store until ctx is cancelled. It is a no-op in local mode.
func (s *Server) WatchSessions(ctx context.Context) {
	if s.guard.Mode() != guard.ModeVerify {
		return
	}
	if err := s.guard.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Err(err).Msg("Session watch stopped")
	}
}

// Close stops background work owned by the server
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// sessionClient derives the backend client for a visitor. Renewed cookies are
// written back to the store.
func (s *Server) sessionClient(m *sessions.Marker) *gateway.Client {
	return s.gateway.Client(sessions.NewJar(s.store, m), m.ID)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func displayMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", displayMethod(method), path)
}

func logError(method, path, error string) {
	log.Error().Msgf("[%-19s] %s %s", displayMethod(method), path, Red+error+ResetColor)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
