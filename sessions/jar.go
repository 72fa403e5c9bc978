package sessions

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/rs/zerolog/log"
)

const persistTimeout = 5 * time.Second

// Jar is an http.CookieJar backed by a Session Marker. It lets the gateway
// attach backend credentials automatically and captures refreshed cookies.
//
// A jar is built per request from the marker the route guard resolved. With a
// nil store it is "pending": cookies are kept on the marker only, which is how
// login collects credentials before the marker is saved.
type Jar struct {
	mu     sync.Mutex
	store  Store
	marker *Marker
	now    func() time.Time
}

var _ http.CookieJar = (*Jar)(nil)

// NewJar returns a jar that writes credential changes back to store
func NewJar(store Store, m *Marker) *Jar {
	return &Jar{store: store, marker: m.Clone(), now: time.Now}
}

// NewPendingJar returns a jar that never touches a store
func NewPendingJar(m *Marker) *Jar {
	return &Jar{marker: m, now: time.Now}
}

func (j *Jar) Cookies(_ *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.marker.Cookies(j.now())
}

func (j *Jar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	j.marker.ApplyCookies(j.now(), cookies)
	if j.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	// Only update a marker that is still stored. A logout or expiry that ran
	// while this request was in flight must not be undone.
	stored, err := j.store.Get(ctx, j.marker.ID)
	if err != nil {
		if consoleerrors.Is(err, consoleerrors.ErrSessionNotFound) {
			log.Debug().Str("session_id", j.marker.ID).Msg("Session ended, dropping refreshed credentials")
			return
		}
		log.Err(err).Str("session_id", j.marker.ID).Msg("Failed to load session for credential update")
		return
	}
	stored.ApplyCookies(j.now(), cookies)
	if err := j.store.Put(ctx, stored); err != nil {
		log.Err(err).Str("session_id", j.marker.ID).Msg("Failed to persist backend credentials")
	}
}

// Marker returns a copy of the jar's current marker
func (j *Jar) Marker() *Marker {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.marker.Clone()
}
