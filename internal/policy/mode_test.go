package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGuard_DefaultGrantRevoke(t *testing.T) {
	guard, err := NewGuard("")
	require.NoError(t, err)
	require.Equal(t, ModeGrantRevoke, guard.Mode())
}

func TestNewGuard_RevokeOnly(t *testing.T) {
	guard, err := NewGuard(" Revoke-Only ")
	require.NoError(t, err)
	require.Equal(t, ModeRevokeOnly, guard.Mode())
}

func TestNewGuard_InvalidMode(t *testing.T) {
	_, err := NewGuard("admin")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid mode")
}

func TestAuthorizeTool_RevokeOnlyDeniesGrant(t *testing.T) {
	guard, err := NewGuard(ModeRevokeOnly)
	require.NoError(t, err)

	require.NoError(t, guard.AuthorizeTool("revoke_table_permissions", "REVOKE"))
	err = guard.AuthorizeTool("grant_table_permissions", "GRANT")
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires grant-revoke mode")
}

func TestAuthorizeTool_GrantRevokeAllowsBoth(t *testing.T) {
	guard, err := NewGuard(ModeGrantRevoke)
	require.NoError(t, err)

	require.NoError(t, guard.AuthorizeTool("grant_database_permissions", "GRANT"))
	require.NoError(t, guard.AuthorizeTool("revoke_database_permissions", "revoke"))
}

func TestAuthorizeTool_UnknownOperation(t *testing.T) {
	guard, err := NewGuard(ModeGrantRevoke)
	require.NoError(t, err)

	err = guard.AuthorizeTool("x", "delete")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown operation")
}

func TestGuard_NilIsGrantRevoke(t *testing.T) {
	var guard *Guard
	require.Equal(t, ModeGrantRevoke, guard.Mode())
	require.NoError(t, guard.AuthorizeTool("grant_table_permissions", "GRANT"))
}
