package gateway

import (
	"errors"
	"fmt"
	"net/http"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
)

// ErrSessionExpired is matched by errors.Is on a *SessionExpiredError
var ErrSessionExpired = consoleerrors.ErrSessionExpired

// ErrMalformedResponse is returned when a successful response is not a JSON envelope
var ErrMalformedResponse = errors.New("malformed backend response")

// NetworkError means no response was received
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: no response from backend: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError carries a non-2xx response and the decoded envelope
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Envelope   Envelope
	// Attempt is 1 for the original dispatch and 2 for the replay
	Attempt int
}

func (e *HTTPError) Error() string {
	msg := e.Envelope.Text()
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// BusinessError is a 2xx response whose envelope status is not success
type BusinessError struct {
	Path     string
	Envelope Envelope
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: backend status %q: %s", e.Path, e.Envelope.Status, e.Envelope.Text())
}

// SessionExpiredError is returned when the backend rejected the session and renewal failed.
// The caller is expected to discard the session and send the visitor to the login page.
type SessionExpiredError struct {
	Request Request
	Cause   error
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("%s %s: session expired: %v", e.Request.Method, e.Request.Path, e.Cause)
}

func (e *SessionExpiredError) Unwrap() []error {
	return []error{ErrSessionExpired, e.Cause}
}

// StatusCode returns the HTTP status of err, or 0 when err carries none
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNetwork reports whether err means the backend could not be reached
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
