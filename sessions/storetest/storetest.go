// Package storetest holds behaviour shared by every sessions.Store implementation
package storetest

import (
	"context"
	"net/http"
	"testing"
	"time"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/jrsteele09/device-console/users"
	"github.com/stretchr/testify/require"
)

// NewMarker returns a valid marker for user with one backend credential
func NewMarker(username string) *sessions.Marker {
	m := sessions.NewMarker(time.Hour)
	m.User = users.Profile{ID: 7, Username: username, Role: users.RoleEmployee}
	m.ApplyCookies(time.Now(), []*http.Cookie{{Name: "access_token", Value: "a-" + username, Path: "/"}})
	return m
}

// Run exercises the Store contract against a fresh store from newStore
func Run(t *testing.T, newStore func(t *testing.T) sessions.Store) {
	t.Run("PutGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		m := NewMarker("alice")

		require.NoError(t, store.Put(ctx, m))
		got, err := store.Get(ctx, m.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", got.User.Username)
		require.Equal(t, m.Credentials[0].Value, got.Credentials[0].Value)
	})

	t.Run("Overwrite", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		m := NewMarker("alice")
		require.NoError(t, store.Put(ctx, m))

		m.ApplyCookies(time.Now(), []*http.Cookie{{Name: "access_token", Value: "renewed"}})
		require.NoError(t, store.Put(ctx, m))

		got, err := store.Get(ctx, m.ID)
		require.NoError(t, err)
		require.Len(t, got.Credentials, 1)
		require.Equal(t, "renewed", got.Credentials[0].Value)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "missing")
		require.ErrorIs(t, err, consoleerrors.ErrSessionNotFound)

		_, err = store.Get(context.Background(), "")
		require.ErrorIs(t, err, consoleerrors.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		m := NewMarker("alice")
		require.NoError(t, store.Put(ctx, m))

		require.NoError(t, store.Delete(ctx, m.ID))
		_, err := store.Get(ctx, m.ID)
		require.ErrorIs(t, err, consoleerrors.ErrSessionNotFound)

		// Deleting twice is fine
		require.NoError(t, store.Delete(ctx, m.ID))
	})

	t.Run("PutRequiresID", func(t *testing.T) {
		store := newStore(t)
		require.Error(t, store.Put(context.Background(), &sessions.Marker{}))
	})

	t.Run("Subscribe", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := store.Subscribe(ctx)
		require.NoError(t, err)

		m := NewMarker("alice")
		require.NoError(t, store.Put(ctx, m))
		require.NoError(t, store.Delete(ctx, m.ID))

		require.Equal(t, sessions.Event{Kind: sessions.EventPut, SessionID: m.ID}, next(t, events))
		require.Equal(t, sessions.Event{Kind: sessions.EventDelete, SessionID: m.ID}, next(t, events))

		cancel()
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-events:
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func next(t *testing.T, events <-chan sessions.Event) sessions.Event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "event channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return sessions.Event{}
	}
}
