package admin

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/server"
	"github.com/QKhanh04/innerg-api/internal/server/config"
	"github.com/QKhanh04/innerg-api/internal/server/identity"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/QKhanh04/innerg-api/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *server.Store {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	s, err := server.OpenStore(context.Background(), c, logging.Nop{}, timex.SystemClock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	a := New(newStore(t), &out, logging.Nop{})

	err := a.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, out.String(), "usage: authctl")

	err = a.Run(context.Background(), []string{"-d", "postgres://x", "frobnicate"})
	assert.ErrorIs(t, err, ErrUsage)

	err = a.Run(context.Background(), []string{"set-password"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRun_MigrateAndSeed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	var out bytes.Buffer
	a := New(s, &out, logging.Nop{})

	require.NoError(t, a.Run(ctx, []string{"migrate"}))
	require.NoError(t, a.Run(ctx, []string{"seed-roles", "-l", "debug"}))
	assert.Contains(t, out.String(), "roles ensured: User, Admin")

	ok, err := s.Identity.RoleExists(ctx, "Admin")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_Sweep(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tokens := s.Repos.RefreshTokens(s.Tx.Conn())
	now := time.Now().UTC()

	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{ID: "1", UserID: "u", Token: "dead", CreatedAt: now, Expires: now.Add(-time.Hour)}))
	require.NoError(t, tokens.Create(ctx, &models.RefreshToken{ID: "2", UserID: "u", Token: "live", CreatedAt: now, Expires: now.Add(time.Hour)}))

	var out bytes.Buffer
	require.NoError(t, New(s, &out, logging.Nop{}).Run(ctx, []string{"sweep"}))
	assert.Equal(t, "removed 1 refresh tokens\n", out.String())
}

func TestRun_SetPassword(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SeedRoles(ctx))

	user, err := s.Identity.Create(ctx, &models.User{UserName: "alice", Email: "a@x.com", EmailConfirmed: true}, "")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s.Repos.RefreshTokens(nil).Create(ctx, &models.RefreshToken{ID: "1", UserID: user.ID, Token: "t1", CreatedAt: now, Expires: now.Add(time.Hour)}))

	stubPasswords(t, "NewSecret1", "NewSecret1")
	var out bytes.Buffer
	require.NoError(t, New(s, &out, logging.Nop{}).Run(ctx, []string{"set-password", "a@x.com"}))
	assert.Contains(t, out.String(), "password updated for alice, 1 sessions revoked")

	fresh, err := s.Identity.FindByName(ctx, "alice")
	require.NoError(t, err)
	res, err := s.Identity.CheckPassword(ctx, fresh, "NewSecret1")
	require.NoError(t, err)
	assert.Equal(t, identity.PasswordOK, res)
}

func TestRun_SetPasswordFailures(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Identity.Create(ctx, &models.User{UserName: "bob", Email: "b@x.com"}, "Secret1!")
	require.NoError(t, err)

	tests := []struct {
		name    string
		who     string
		answers []string
		wantErr string
	}{
		{"unknown user", "nobody", nil, `user "nobody" not found`},
		{"mismatch", "bob", []string{"NewSecret1", "NewSecret2"}, "passwords do not match"},
		{"weak", "bob", []string{"short", "short"}, "Validation failed"},
		{"no terminal", "bob", nil, "no more input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubPasswords(t, tt.answers...)
			var out bytes.Buffer
			err := New(s, &out, logging.Nop{}).Run(ctx, []string{"set-password", tt.who})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
