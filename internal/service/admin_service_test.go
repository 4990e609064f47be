package service

import (
	"context"
	"testing"

	"defakezone/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmin_ListUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "alice", "secret1")
	env.createUser(t, "bob", "secret1")
	env.createUser(t, "carol", "secret1")

	users, total, err := env.admin.ListUsers(ctx, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
}

func TestAdmin_DeleteUserRemovesImagesAndFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root", "secret1")
	alice := env.createUser(t, "alice", "secret1")
	bob := env.createUser(t, "bob", "secret1")

	for i := 0; i < 2; i++ {
		_, err := env.detection.Detect(ctx, alice.ID, pngUpload(t))
		require.NoError(t, err)
	}
	require.NoError(t, env.account.UpdateAvatar(ctx, alice.ID, pngUpload(t)))
	_, err := env.detection.Detect(ctx, bob.ID, pngUpload(t))
	require.NoError(t, err)
	assert.Equal(t, 4, env.countFiles(t))

	assert.ErrorIs(t, env.admin.DeleteUser(ctx, admin.ID, admin.ID), apperr.BadRequest)
	assert.ErrorIs(t, env.admin.DeleteUser(ctx, admin.ID, 9999), apperr.NotFound)

	require.NoError(t, env.admin.DeleteUser(ctx, admin.ID, alice.ID))
	assert.Equal(t, 1, env.countFiles(t))
	assert.EqualValues(t, 1, env.countRows(t))

	_, err = env.users.GetByID(ctx, alice.ID)
	assert.Error(t, err)
}
