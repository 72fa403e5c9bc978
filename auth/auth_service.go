// Package auth signs visitors in and out against the backend and keeps their
// Session Marker in step with it.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/device-console/gateway"
	"github.com/jrsteele09/device-console/guard"
	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/jrsteele09/device-console/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxSessionAge  = 7 * 24 * time.Hour
	defaultSignupMessage  = "Account created successfully!"
	networkFailureMessage = "Network error! Please check your connection."
)

// Error carries the message shown to the visitor on the login and signup pages
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Service talks to the backend's authentication endpoints
type Service struct {
	gateway   *gateway.Gateway
	store     sessions.Store
	validator *Validator
	maxAge    time.Duration
	nowTime   func() time.Time // nowTime function (injectable for testing)
}

var _ guard.Verifier = (*Service)(nil)

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithMaxSessionAge sets how long a Session Marker lives after login
func WithMaxSessionAge(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(gw *gateway.Gateway, store sessions.Store, options ...ServiceOption) (*Service, error) {
	if gw == nil {
		return nil, errors.New("[NewService] gateway is required")
	}
	if store == nil {
		return nil, errors.New("[NewService] session store is required")
	}

	s := &Service{
		gateway:   gw,
		store:     store,
		validator: NewValidator(),
		maxAge:    defaultMaxSessionAge,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login authenticates with the backend and stores a new Session Marker holding
// the user profile and the backend cookies set on the login response.
func (s *Service) Login(ctx context.Context, username, password string) (*sessions.Marker, error) {
	if err := s.validator.ValidateLogin(username, password); err != nil {
		return nil, err
	}

	now := s.nowTime()
	marker := sessions.NewMarker(s.maxAge)
	marker.CreatedAt = now
	marker.ExpiresAt = now.Add(s.maxAge)

	// Nothing is persisted until the backend accepts the credentials
	client := s.gateway.Client(sessions.NewPendingJar(marker), "")
	resp, err := client.Send(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   gateway.PathLogin,
		Body: map[string]string{
			"username": username,
			"password": password,
		},
	})
	if err != nil {
		return nil, failure(err, LoginFailedErr.Error())
	}

	var profile users.Profile
	if err := resp.Envelope.DecodeUser(&profile); err != nil {
		return nil, &Error{Message: LoginFailedErr.Error(), Err: err}
	}
	if !profile.Valid() {
		return nil, &Error{Message: LoginFailedErr.Error(), Err: errors.New("backend returned a user without a username")}
	}
	marker.User = profile

	if err := s.store.Put(ctx, marker); err != nil {
		return nil, errors.Wrap(err, "store session marker")
	}
	log.Info().Str("username", profile.Username).Str("session_id", marker.ID).Msg("User logged in")
	return marker, nil
}

// Signup validates form and creates the account. On success it returns the
// message to show on the login page.
func (s *Service) Signup(ctx context.Context, form SignupForm) (string, error) {
	if err := s.validator.ValidateSignup(form); err != nil {
		return "", err
	}
	form = form.Trimmed()

	client := s.gateway.Client(nil, "")
	resp, err := client.Send(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   gateway.PathSignup,
		Body: map[string]string{
			"username":  form.Username,
			"mailid":    form.Email,
			"password":  form.Password,
			"cpassword": form.ConfirmPassword,
		},
	})
	if err != nil {
		return "", failure(err, SignupFailedErr.Error())
	}
	if msg := resp.Envelope.Message; msg != "" {
		return msg, nil
	}
	return defaultSignupMessage, nil
}

// Logout tells the backend to drop its cookies and always removes the local marker.
// A backend failure is only logged.
func (s *Service) Logout(ctx context.Context, m *sessions.Marker) error {
	if m == nil {
		return nil
	}
	client := s.gateway.Client(sessions.NewJar(s.store, m), m.ID)
	if _, err := client.Send(ctx, gateway.Request{Method: http.MethodPost, Path: gateway.PathLogout}); err != nil {
		log.Err(err).Str("session_id", m.ID).Msg("Backend logout failed")
	}

	if err := s.store.Delete(ctx, m.ID); err != nil {
		return errors.Wrapf(err, "delete session %s", m.ID)
	}
	log.Info().Str("username", m.User.Username).Str("session_id", m.ID).Msg("User logged out")
	return nil
}

// CurrentUser asks the backend who the marker's credentials belong to. The
// verify endpoint never triggers the gateway's automatic renewal, so a 401 is
// answered here with one explicit renewal and one more attempt.
func (s *Service) CurrentUser(ctx context.Context, m *sessions.Marker) (users.Profile, error) {
	client := s.gateway.Client(sessions.NewJar(s.store, m), m.ID)
	req := gateway.Request{Method: http.MethodGet, Path: gateway.PathVerifyAuth}

	resp, err := client.Send(ctx, req)
	if gateway.StatusCode(err) == http.StatusUnauthorized {
		if renewErr := client.Renew(ctx); renewErr != nil {
			return users.Profile{}, &gateway.SessionExpiredError{Request: req, Cause: renewErr}
		}
		resp, err = client.Send(ctx, req)
	}
	if err != nil {
		return users.Profile{}, err
	}

	var profile users.Profile
	if err := resp.Envelope.DecodeUser(&profile); err != nil {
		return users.Profile{}, err
	}
	return profile, nil
}

// Verify implements guard.Verifier
func (s *Service) Verify(ctx context.Context, m *sessions.Marker) error {
	_, err := s.CurrentUser(ctx, m)
	return err
}

// Message returns the text to show the visitor for err
func Message(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	switch {
	case errors.Is(err, MissingCredentialsErr),
		errors.Is(err, MissingSignupFieldsErr),
		errors.Is(err, UserPasswordsDontMatchErr),
		errors.Is(err, PasswordTooShortErr):
		return err.Error()
	}
	return LoginFailedErr.Error()
}

func failure(err error, fallback string) error {
	if gateway.IsNetwork(err) {
		return &Error{Message: networkFailureMessage, Err: err}
	}
	var httpErr *gateway.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusUnauthorized {
			err = fmt.Errorf("%w: %w", consoleerrors.ErrInvalidCredentials, err)
		}
		if httpErr.Envelope.Error != "" {
			return &Error{Message: httpErr.Envelope.Error, Err: err}
		}
		if text := httpErr.Envelope.Text(); text != "" {
			return &Error{Message: text, Err: err}
		}
	}
	return &Error{Message: fallback, Err: err}
}
