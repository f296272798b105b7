package users

import (
	"context"
	"testing"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	u, err := r.Create(ctx, &models.User{UserName: "Alice", Email: "Alice@X.com"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	byName, err := r.GetByUserName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := r.GetByEmail(ctx, "alice@x.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = r.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMemory_UniqueNameAndEmail(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Create(ctx, &models.User{UserName: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = r.Create(ctx, &models.User{UserName: "ALICE", Email: "other@x.com"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	_, err = r.Create(ctx, &models.User{UserName: "bob", Email: "A@X.COM"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	bob, err := r.Create(ctx, &models.User{UserName: "bob", Email: "b@x.com"})
	require.NoError(t, err)
	bob.UserName = "alice"
	assert.ErrorIs(t, r.Update(ctx, bob), common.ErrorAlreadyExists)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	u, err := r.Create(ctx, &models.User{UserName: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	got.EmailConfirmed = true
	end := time.Now()
	got.LockoutEnd = &end

	again, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, again.EmailConfirmed)
	assert.Nil(t, again.LockoutEnd)
}

func TestMemory_Roles(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	u, err := r.Create(ctx, &models.User{UserName: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	ok, err := r.RoleExists(ctx, "User")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Error(t, r.AddToRole(ctx, u.ID, "User"))

	require.NoError(t, r.EnsureRole(ctx, "User"))
	require.NoError(t, r.EnsureRole(ctx, "Admin"))
	require.NoError(t, r.EnsureRole(ctx, "user"))

	require.NoError(t, r.AddToRole(ctx, u.ID, "user"))
	require.NoError(t, r.AddToRole(ctx, u.ID, "Admin"))
	assert.ErrorIs(t, r.AddToRole(ctx, u.ID, "USER"), common.ErrorAlreadyExists)

	roles, err := r.GetRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "User"}, roles)

	require.NoError(t, r.RemoveFromRole(ctx, u.ID, "Admin"))
	roles, err = r.GetRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"User"}, roles)
}

func TestMemory_LoginsAndDelete(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	u, err := r.Create(ctx, &models.User{UserName: "alice", Email: "a@x.com"})
	require.NoError(t, err)
	other, err := r.Create(ctx, &models.User{UserName: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	login := models.ExternalLogin{Provider: "Google", ProviderKey: "sub-1", UserID: u.ID}
	require.NoError(t, r.AddLogin(ctx, login))

	// same (provider, subject) cannot point at another user
	assert.ErrorIs(t, r.AddLogin(ctx, models.ExternalLogin{Provider: "Google", ProviderKey: "sub-1", UserID: other.ID}), common.ErrorAlreadyExists)
	// one link per provider per user
	assert.ErrorIs(t, r.AddLogin(ctx, models.ExternalLogin{Provider: "Google", ProviderKey: "sub-2", UserID: u.ID}), common.ErrorAlreadyExists)

	found, err := r.FindByLogin(ctx, "Google", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	require.NoError(t, r.Delete(ctx, u.ID))
	_, err = r.FindByLogin(ctx, "Google", "sub-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, r.Delete(ctx, u.ID), common.ErrorNotFound)
	assert.Equal(t, 1, r.Count())
}
