package sessions_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/jrsteele09/device-console/sessions/memstore"
	"github.com/jrsteele09/device-console/users"
	"github.com/stretchr/testify/require"
)

func TestMarker_ApplyCookies(t *testing.T) {
	now := time.Now()
	m := sessions.NewMarker(time.Hour)

	m.ApplyCookies(now, []*http.Cookie{
		{Name: "access_token", Value: "a1"},
		{Name: "refresh_token", Value: "r1", MaxAge: 3600},
	})
	require.Len(t, m.Cookies(now), 2)

	// Replace one, delete the other
	m.ApplyCookies(now, []*http.Cookie{
		{Name: "access_token", Value: "a2"},
		{Name: "refresh_token", MaxAge: -1},
	})
	cookies := m.Cookies(now)
	require.Len(t, cookies, 1)
	require.Equal(t, "access_token", cookies[0].Name)
	require.Equal(t, "a2", cookies[0].Value)

	// A past expiry also deletes
	m.ApplyCookies(now, []*http.Cookie{{Name: "access_token", Expires: now.Add(-time.Minute)}})
	require.Empty(t, m.Cookies(now))
}

func TestMarker_CookiesSkipExpired(t *testing.T) {
	now := time.Now()
	m := sessions.NewMarker(time.Hour)
	m.ApplyCookies(now, []*http.Cookie{{Name: "access_token", Value: "a", MaxAge: 60}})

	require.Len(t, m.Cookies(now), 1)
	require.Empty(t, m.Cookies(now.Add(2*time.Minute)))
}

func TestMarker_Valid(t *testing.T) {
	now := time.Now()
	m := sessions.NewMarker(time.Hour)
	require.False(t, m.Valid(now), "no user")

	m.User = users.Profile{Username: "a"}
	require.True(t, m.Valid(now))
	require.False(t, m.Valid(now.Add(2*time.Hour)))

	var nilMarker *sessions.Marker
	require.False(t, nilMarker.Valid(now))
}

func TestContext(t *testing.T) {
	_, ok := sessions.FromContext(context.Background())
	require.False(t, ok)

	m := sessions.NewMarker(time.Hour)
	got, ok := sessions.FromContext(sessions.WithMarker(context.Background(), m))
	require.True(t, ok)
	require.Same(t, m, got)
}

func TestJar_PersistsRefreshedCookies(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	u, _ := url.Parse("http://backend.test/api/")

	m := sessions.NewMarker(time.Hour)
	m.User = users.Profile{Username: "a"}
	m.ApplyCookies(time.Now(), []*http.Cookie{{Name: "access_token", Value: "old"}})
	require.NoError(t, store.Put(ctx, m))

	jar := sessions.NewJar(store, m)
	require.Equal(t, "old", jar.Cookies(u)[0].Value)

	jar.SetCookies(u, []*http.Cookie{{Name: "access_token", Value: "new"}})
	require.Equal(t, "new", jar.Cookies(u)[0].Value)

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "new", stored.Credentials[0].Value)

	// The caller's marker is not touched
	require.Equal(t, "old", m.Credentials[0].Value)
}

func TestJar_DoesNotRestoreDeletedSession(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	u, _ := url.Parse("http://backend.test/api/")

	m := sessions.NewMarker(time.Hour)
	m.User = users.Profile{Username: "a"}
	require.NoError(t, store.Put(ctx, m))

	jar := sessions.NewJar(store, m)
	require.NoError(t, store.Delete(ctx, m.ID))

	jar.SetCookies(u, []*http.Cookie{{Name: "access_token", Value: "new"}})
	require.Equal(t, "new", jar.Cookies(u)[0].Value)

	_, err := store.Get(ctx, m.ID)
	require.ErrorIs(t, err, consoleerrors.ErrSessionNotFound)
	require.Equal(t, 0, store.Len())
}

func TestPendingJar_DoesNotPersist(t *testing.T) {
	u, _ := url.Parse("http://backend.test/api/")
	m := sessions.NewMarker(time.Hour)

	jar := sessions.NewPendingJar(m)
	jar.SetCookies(u, []*http.Cookie{{Name: "access_token", Value: "a"}, {Name: "refresh_token", Value: "r"}})

	require.Len(t, m.Credentials, 2)
	require.Len(t, jar.Marker().Credentials, 2)
}

func TestBroadcaster_Close(t *testing.T) {
	b := sessions.NewBroadcaster()
	events, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	b.Publish(sessions.Event{Kind: sessions.EventPut, SessionID: "x"})
	b.Close()

	e, ok := <-events
	require.True(t, ok)
	require.Equal(t, "x", e.SessionID)
	_, ok = <-events
	require.False(t, ok)

	late, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	_, ok = <-late
	require.False(t, ok)
}
