package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFederated_CreatesConfirmedUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.svc.LoginWithFederatedIdentity(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", res.UserName)
	assert.NotEmpty(t, res.RefreshToken)

	u, err := h.store.FindByLogin(ctx, common.GoogleProvider, "google-sub-1")
	require.NoError(t, err)
	assert.True(t, u.EmailConfirmed)
	assert.False(t, u.HasPassword())
	roles, _ := h.store.GetRoles(ctx, u.ID)
	assert.Equal(t, []string{"User"}, roles)

	again, err := h.svc.LoginWithFederatedIdentity(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, 1, h.repos.MemoryUsers().Count())
	assert.Equal(t, []string{again.RefreshToken}, h.activeTokens(u.ID))
}

func TestFederated_RequiresVerifiedEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		verified bool
	}{
		{"unverified", "a@x.com", false},
		{"empty email", "", true},
		{"blank email", "   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.verifier.id.Email = tt.email
			h.verifier.id.EmailVerified = tt.verified

			_, err := h.svc.LoginWithFederatedIdentity(context.Background(), "id-token")
			requireAppError(t, err, common.ErrorUnauthorized, "Email is not verified by the identity provider")
			assert.Zero(t, h.repos.MemoryUsers().Count())
		})
	}
}

func TestFederated_VerifierErrorPassesThrough(t *testing.T) {
	h := newHarness(t)
	h.verifier.err = &common.AppError{Kind: common.ErrorUnauthorized, Message: "invalid identity assertion"}

	_, err := h.svc.LoginWithFederatedIdentity(context.Background(), "forged")
	requireAppError(t, err, common.ErrorUnauthorized, "invalid identity assertion")
	assert.Zero(t, h.repos.MemoryUsers().Count())
}

func TestFederated_LinksAccountFoundByEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerConfirmed(t, "alice", "a@x.com", "Secret1!")
	aliceID := h.userID(t, "a@x.com")

	res, err := h.svc.LoginWithFederatedIdentity(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.UserName)
	assert.Equal(t, 1, h.repos.MemoryUsers().Count())

	linked, err := h.store.FindByLogin(ctx, common.GoogleProvider, "google-sub-1")
	require.NoError(t, err)
	assert.Equal(t, aliceID, linked.ID)

	_, err = h.svc.Login(ctx, "alice", "Secret1!")
	require.NoError(t, err, "a confirmed password survives linking")
}

func TestFederated_LinkingUnconfirmedAccountDropsPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Register(ctx, RegisterRequest{"squatter", "a@x.com", "Secret1!", "Secret1!"})
	require.NoError(t, err)

	_, err = h.svc.LoginWithFederatedIdentity(ctx, "id-token")
	require.NoError(t, err)

	u, err := h.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, u.EmailConfirmed)
	assert.False(t, u.HasPassword())

	_, err = h.svc.Login(ctx, "squatter", "Secret1!")
	requireAppError(t, err, common.ErrorUnauthorized, "Invalid credentials")
}

func TestFederated_LockedOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.LoginWithFederatedIdentity(ctx, "id-token")
	require.NoError(t, err)

	u, err := h.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	end := h.clock.Now().Add(time.Minute)
	u.LockoutEnd = &end
	require.NoError(t, h.store.Update(ctx, u))

	_, err = h.svc.LoginWithFederatedIdentity(ctx, "id-token")
	requireAppError(t, err, common.ErrorUnauthorized, "Account is locked out")
}

// failingLink makes linking a new account fail.
type failingLink struct {
	CredentialStore
}

func (failingLink) AddLogin(context.Context, models.ExternalLogin) error {
	return errors.New("link refused")
}

func TestFederated_RollsBackUserOnLinkFailure(t *testing.T) {
	h := newHarness(t, withStore(func(s CredentialStore) CredentialStore { return failingLink{s} }))

	_, err := h.svc.LoginWithFederatedIdentity(context.Background(), "id-token")
	require.ErrorContains(t, err, "link refused")
	assert.Zero(t, h.repos.MemoryUsers().Count())
}

func TestFederated_EmailTakenAsUserName(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerConfirmed(t, "a@x.com", "other@y.com", "Secret1!")
	localID := h.userID(t, "other@y.com")

	res, err := h.svc.LoginWithFederatedIdentity(ctx, "id-token")
	require.NoError(t, err)
	assert.Regexp(t, `^a@x\.com-[0-9a-f]{6}$`, res.UserName)
	assert.Equal(t, 2, h.repos.MemoryUsers().Count())

	linked, err := h.store.FindByLogin(ctx, common.GoogleProvider, "google-sub-1")
	require.NoError(t, err)
	assert.NotEqual(t, localID, linked.ID)
	assert.Equal(t, "a@x.com", linked.Email)

	again, err := h.svc.LoginWithFederatedIdentity(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, res.UserName, again.UserName)

	local, err := h.svc.Login(ctx, "other@y.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", local.UserName)
}
