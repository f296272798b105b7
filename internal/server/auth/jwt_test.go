package auth

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner(testKey, "innerg", "innerg-web", 15*time.Minute, 7*24*time.Hour, WithClock(fixedClock(now)))
	require.NoError(t, err)
	return s
}

func TestNewSigner_MissingSettings(t *testing.T) {
	t.Parallel()

	_, err := NewSigner(nil, "", "", 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrorConfiguration)

	var errs common.ConfigurationErrors
	require.True(t, errors.As(err, &errs))
	assert.Len(t, errs, 5)
}

func TestIssueAndValidate_Success(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	s := newTestSigner(t, now)

	tok, issued, err := s.IssueAccessToken(Principal{
		UserID:   "user-123",
		UserName: "alice",
		Email:    "a@x.com",
		Roles:    []string{"User", "Admin"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	require.NotEmpty(t, issued.TokenID)

	got, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", got.UserID)
	assert.Equal(t, "alice", got.UserName)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, []string{"User", "Admin"}, got.Roles)
	assert.Equal(t, issued.TokenID, got.TokenID)
	assert.WithinDuration(t, now.Add(15*time.Minute), got.ExpiresAt, time.Second)
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t, time.Now())
	_, a, err := s.IssueAccessToken(Principal{UserID: "u"})
	require.NoError(t, err)
	_, b, err := s.IssueAccessToken(Principal{UserID: "u"})
	require.NoError(t, err)
	assert.NotEqual(t, a.TokenID, b.TokenID)
}

func TestValidate_Expired(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now().Add(-time.Hour)
	tok, _, err := newTestSigner(t, issuedAt).IssueAccessToken(Principal{UserID: "u1"})
	require.NoError(t, err)

	s := newTestSigner(t, time.Now())
	_, err = s.Validate(tok)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	p, err := s.PrincipalFromExpired(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
}

func TestValidate_WrongKey(t *testing.T) {
	t.Parallel()

	other, err := NewSigner([]byte("another-key-another-key-another!!"), "innerg", "innerg-web", time.Minute, time.Hour)
	require.NoError(t, err)
	tok, _, err := other.IssueAccessToken(Principal{UserID: "u2"})
	require.NoError(t, err)

	s := newTestSigner(t, time.Now())
	_, err = s.Validate(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	_, err = s.PrincipalFromExpired(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_WrongIssuerOrAudience(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t, time.Now())

	for _, tc := range []struct{ name, iss, aud string }{
		{"issuer", "someone-else", "innerg-web"},
		{"audience", "innerg", "other-app"},
	} {
		other, err := NewSigner(testKey, tc.iss, tc.aud, time.Minute, time.Hour)
		require.NoError(t, err)
		tok, _, err := other.IssueAccessToken(Principal{UserID: "u"})
		require.NoError(t, err)

		_, err = s.Validate(tok)
		assert.ErrorIs(t, err, common.ErrInvalidToken, tc.name)
		_, err = s.PrincipalFromExpired(tok)
		assert.ErrorIs(t, err, common.ErrInvalidToken, tc.name)
	}
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := newTestSigner(t, now)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u3",
			Issuer:    "innerg",
			Audience:  jwt.ClaimStrings{"innerg-web"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testKey)
	require.NoError(t, err)

	for name, tok := range map[string]string{"none": none, "HS512": hs512} {
		_, err := s.Validate(tok)
		assert.ErrorIs(t, err, common.ErrInvalidToken, name)
		_, err = s.PrincipalFromExpired(tok)
		assert.ErrorIs(t, err, common.ErrInvalidToken, name)
	}
}

func TestValidate_Garbage(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t, time.Now())
	_, err := s.Validate("not-a-jwt")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestNewRefreshToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := newTestSigner(t, now)

	a, err := s.NewRefreshToken("user-1")
	require.NoError(t, err)
	b, err := s.NewRefreshToken("user-1")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(a.Token)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.NotEqual(t, a.Token, b.Token)
	assert.NotContains(t, a.Token, "user-1")

	assert.Equal(t, "user-1", a.UserID)
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, now.Add(7*24*time.Hour), a.Expires)
	assert.False(t, a.Revoked)
	assert.Equal(t, 7*24*time.Hour, s.RefreshTTL())
}
