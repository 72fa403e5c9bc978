package users_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/device-console/users"
	"github.com/stretchr/testify/require"
)

func TestProfile_DecodeLoginUser(t *testing.T) {
	var p users.Profile
	err := json.Unmarshal([]byte(`{"id":7,"username":"a","email":"a@x.io","role":"employee","is_verified":true}`), &p)
	require.NoError(t, err)

	require.True(t, p.Valid())
	require.Equal(t, int64(7), p.ID)
	require.Equal(t, users.RoleEmployee, p.Role)
	require.True(t, p.Verified)
	require.Equal(t, "a (employee)", p.DisplayName())
}

func TestProfile_Valid(t *testing.T) {
	require.False(t, users.Profile{}.Valid())
	require.False(t, users.Profile{Username: "  "}.Valid())
	require.True(t, users.Profile{Username: "a"}.Valid())
	require.Equal(t, "a", users.Profile{Username: "a"}.DisplayName())
}
