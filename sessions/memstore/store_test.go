package memstore_test

import (
	"context"
	"testing"
	"time"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/jrsteele09/device-console/sessions/memstore"
	"github.com/jrsteele09/device-console/sessions/storetest"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) sessions.Store {
		store := memstore.New()
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestStore_ExpiredMarkerIsRemovedOnRead(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	m := storetest.NewMarker("alice")
	m.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, store.Put(ctx, m))
	require.Equal(t, 1, store.Len())

	_, err := store.Get(ctx, m.ID)
	require.ErrorIs(t, err, consoleerrors.ErrSessionNotFound)
	require.Equal(t, 0, store.Len())
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	m := storetest.NewMarker("alice")
	require.NoError(t, store.Put(ctx, m))

	m.User.Username = "mallory"
	got, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.User.Username)

	got.Credentials[0].Value = "changed"
	again, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	require.NotEqual(t, "changed", again.Credentials[0].Value)
}
