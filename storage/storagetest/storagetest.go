// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oxbobot/pkg/models"
	"oxbobot/storage"
)

// Run exercises stg, which must be freshly migrated and empty.
func Run(t *testing.T, stg storage.IStorage) {
	t.Run("users", func(t *testing.T) { testUsers(t, stg.User()) })
	t.Run("mutations", func(t *testing.T) { testMutations(t, stg.User()) })
	t.Run("resolve pending", func(t *testing.T) { testResolvePending(t, stg.User()) })
	t.Run("policy", func(t *testing.T) { testPolicy(t, stg.Policy()) })
}

func testUsers(t *testing.T, users storage.IUserStorage) {
	ctx := context.Background()

	exists, err := users.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	alice, err := users.Insert(ctx, "alice", 100, false, false)
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Username)
	assert.Equal(t, int64(100), alice.ChatID)
	assert.False(t, alice.IsAdmin)
	assert.False(t, alice.Approved)
	assert.False(t, alice.Blocked)
	assert.True(t, alice.ReceivesUpdates)
	assert.Zero(t, alice.PendingRequests)

	_, err = users.Insert(ctx, "alice", 999, true, true)
	assert.ErrorIs(t, err, storage.ErrDuplicateUser)

	bob, err := users.Insert(ctx, "bob", 200, true, true)
	require.NoError(t, err)
	assert.True(t, bob.IsAdmin)

	exists, err = users.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := users.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	missing, err := users.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Username)
	assert.Equal(t, "bob", all[1].Username)

	admins, err := users.Admins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "bob", admins[0].Username)

	removed, err := users.Remove(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = users.Remove(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = users.Remove(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, removed)

	all, err = users.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testMutations(t *testing.T, users storage.IUserStorage) {
	ctx := context.Background()
	_, err := users.Insert(ctx, "carol", 300, false, false)
	require.NoError(t, err)
	defer users.Remove(ctx, "carol")

	require.NoError(t, users.SetApproved(ctx, "carol", true))
	require.NoError(t, users.SetBlocked(ctx, "carol", true))
	carol, err := users.Get(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, carol.Approved)
	assert.True(t, carol.Blocked)
	assert.False(t, carol.IsAdmin)

	on, err := users.ToggleUpdates(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, on)
	on, err = users.ToggleUpdates(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, on)

	for want := 1; want <= 3; want++ {
		n, err := users.IncrementRequests(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	assert.ErrorIs(t, users.SetApproved(ctx, "ghost", true), storage.ErrUnknownUser)
	assert.ErrorIs(t, users.SetBlocked(ctx, "ghost", true), storage.ErrUnknownUser)
	_, err = users.ToggleUpdates(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrUnknownUser)
	_, err = users.IncrementRequests(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrUnknownUser)
}

func testResolvePending(t *testing.T, users storage.IUserStorage) {
	ctx := context.Background()
	_, err := users.Insert(ctx, "dave", 400, false, false)
	require.NoError(t, err)
	defer users.Remove(ctx, "dave")

	applied, err := users.ResolvePending(ctx, "dave", false)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = users.ResolvePending(ctx, "dave", true)
	require.NoError(t, err)
	assert.False(t, applied, "second decision must not apply")

	dave, err := users.Get(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, models.StateBlocked, dave.State())
	assert.False(t, dave.Approved)

	_, err = users.ResolvePending(ctx, "ghost", true)
	assert.ErrorIs(t, err, storage.ErrUnknownUser)
}

func testPolicy(t *testing.T, policy storage.IPolicyStorage) {
	ctx := context.Background()

	snap, err := policy.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPolicy(), *snap)

	require.NoError(t, policy.EnsureDefault(ctx))

	ok, err := policy.Set(ctx, false, models.PolicyCtrl)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = policy.Set(ctx, true, "bogus")
	require.NoError(t, err)
	assert.False(t, ok)

	// EnsureDefault must not reset an existing row.
	require.NoError(t, policy.EnsureDefault(ctx))

	user, err := policy.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyCtrl, user)
	admin, err := policy.Get(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyCtrlUnlimited, admin)

	ok, err = policy.SetMaxRequests(ctx, true, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = policy.SetMaxRequests(ctx, false, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := policy.MaxRequests(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = policy.MaxRequests(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMaxRequests, n)
}
