// Package sessions holds the Session Marker: the server side record that a
// visitor is logged in, together with the backend credentials captured for them.
//
// Markers live in a Store. Every reader goes back to the store, nothing keeps a
// canonical copy in memory, and stores publish put/delete events so that caches
// in this or other console instances can drop stale entries.
package sessions

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/device-console/users"
)

// Credential is a backend cookie held on behalf of the visitor
type Credential struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// Expired reports whether the credential has passed its expiry. Zero means session lifetime.
func (c Credential) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// Marker is the Session Marker
type Marker struct {
	ID          string        `json:"id"`
	User        users.Profile `json:"user"`
	Credentials []Credential  `json:"credentials,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// NewMarker creates an unsaved marker with a fresh ID
func NewMarker(maxAge time.Duration) *Marker {
	now := time.Now()
	return &Marker{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(maxAge),
	}
}

// Valid reports whether the marker names a user and has not expired
func (m *Marker) Valid(now time.Time) bool {
	return m != nil && m.ID != "" && m.User.Valid() && now.Before(m.ExpiresAt)
}

// Clone returns a deep copy so callers can mutate without touching the store's value
func (m *Marker) Clone() *Marker {
	if m == nil {
		return nil
	}
	c := *m
	c.Credentials = append([]Credential(nil), m.Credentials...)
	return &c
}

// Cookies returns the live credentials as request cookies
func (m *Marker) Cookies(now time.Time) []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(m.Credentials))
	for _, c := range m.Credentials {
		if c.Expired(now) {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies
}

// ApplyCookies merges Set-Cookie values into the credentials.
// A negative MaxAge or a past expiry removes the credential.
func (m *Marker) ApplyCookies(now time.Time, cookies []*http.Cookie) {
	for _, cookie := range cookies {
		expires := cookie.Expires
		if cookie.MaxAge > 0 {
			expires = now.Add(time.Duration(cookie.MaxAge) * time.Second)
		}
		remove := cookie.MaxAge < 0 || (!expires.IsZero() && !expires.After(now))

		kept := m.Credentials[:0]
		for _, c := range m.Credentials {
			if c.Name != cookie.Name {
				kept = append(kept, c)
			}
		}
		m.Credentials = kept

		if !remove {
			m.Credentials = append(m.Credentials, Credential{
				Name:    cookie.Name,
				Value:   cookie.Value,
				Path:    cookie.Path,
				Expires: expires,
			})
		}
	}
}

// EventKind describes a change to a stored marker
type EventKind string

const (
	EventPut    EventKind = "put"
	EventDelete EventKind = "delete"
)

// Event is published by a Store after a marker changes
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
}

// Store persists markers. Get returns ErrSessionNotFound (internal/errors) for
// missing or expired markers. Delete of an unknown ID is not an error.
type Store interface {
	Get(ctx context.Context, id string) (*Marker, error)
	Put(ctx context.Context, m *Marker) error
	Delete(ctx context.Context, id string) error
	// Subscribe delivers events until ctx is cancelled, then closes the channel
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

type contextKey string

const markerContextKey contextKey = "session_marker"

// WithMarker stores the resolved marker in the request context
func WithMarker(ctx context.Context, m *Marker) context.Context {
	return context.WithValue(ctx, markerContextKey, m)
}

// FromContext returns the marker placed by the route guard
func FromContext(ctx context.Context) (*Marker, bool) {
	m, ok := ctx.Value(markerContextKey).(*Marker)
	return m, ok && m != nil
}
