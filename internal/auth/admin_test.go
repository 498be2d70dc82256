package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ostiary.org/internal/cluster"
	"ostiary.org/internal/store/mem"
)

func TestResolveAdminSuper(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	admin, err := svc.ResolveAdmin(ctx, ".super_admin", "chiefkey")
	require.NoError(t, err)
	assert.Equal(t, AdminSuper, admin.Level)
	assert.True(t, admin.Administers("anything"))

	_, err = svc.ResolveAdmin(ctx, ".super_admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolveAdminSuperDisabled(t *testing.T) {
	svc, err := NewService(mem.New(), cluster.NewMemory())
	require.NoError(t, err)

	_, err = svc.ResolveAdmin(context.Background(), ".super_admin", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolveAdminTiers(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedAccount(t, svc, "acme", "fixed")
	seedUser(t, svc, "acme", "alice", "pw", true, false)
	seedUser(t, svc, "acme", "bob", "pw", false, false)
	seedUser(t, svc, "acme", "root", "pw", false, true)
	ctx := context.Background()

	admin, err := svc.ResolveAdmin(ctx, "acme:alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, AdminAccount, admin.Level)
	assert.True(t, admin.Administers("acme"))
	assert.False(t, admin.Administers("globex"))

	admin, err = svc.ResolveAdmin(ctx, "acme:root", "pw")
	require.NoError(t, err)
	assert.Equal(t, AdminReseller, admin.Level)
	assert.True(t, admin.Administers("globex"))

	// Valid credentials without an admin marker still resolve, at no level.
	admin, err = svc.ResolveAdmin(ctx, "acme:bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, AdminNone, admin.Level)
	assert.False(t, admin.Administers("acme"))

	_, err = svc.ResolveAdmin(ctx, "acme:bob", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.ResolveAdmin(ctx, "nocolon", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.ResolveAdmin(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangingOwnKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedAccount(t, svc, "acme", "fixed")
	seedUser(t, svc, "acme", "alice", "pw", true, false)
	seedUser(t, svc, "acme", "bob", "pw", false, false)
	seedUser(t, svc, "acme", "root", "pw", false, true)
	ctx := context.Background()

	bob, err := svc.ResolveAdmin(ctx, "acme:bob", "pw")
	require.NoError(t, err)
	alice, err := svc.ResolveAdmin(ctx, "acme:alice", "pw")
	require.NoError(t, err)
	root, err := svc.ResolveAdmin(ctx, "acme:root", "pw")
	require.NoError(t, err)

	assert.True(t, bob.ChangingOwnKey("acme", "bob", false, false))
	assert.False(t, bob.ChangingOwnKey("acme", "alice", false, false), "not their own record")
	assert.False(t, bob.ChangingOwnKey("acme", "bob", true, false), "cannot self-promote to admin")
	assert.False(t, bob.ChangingOwnKey("acme", "bob", false, true), "cannot self-promote to reseller")

	assert.True(t, alice.ChangingOwnKey("acme", "alice", true, false), "admins keep their marker")
	assert.False(t, alice.ChangingOwnKey("acme", "alice", true, true), "admins cannot claim reseller")

	assert.True(t, root.ChangingOwnKey("acme", "root", true, true))
}

func TestAdminLevelString(t *testing.T) {
	assert.Equal(t, "none", AdminNone.String())
	assert.Equal(t, "account", AdminAccount.String())
	assert.Equal(t, "reseller", AdminReseller.String())
	assert.Equal(t, "super", AdminSuper.String())
}
