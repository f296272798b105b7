package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the tests fast
var testParams = Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	h, err := NewPasswordHasher(testParams)
	require.NoError(t, err)
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("Secret1!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"), encoded)

	ok, err := h.Verify("Secret1!", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("secret1!", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHash_RandomSalt(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify_UsesEncodedParameters(t *testing.T) {
	strong, err := NewPasswordHasher(Argon2Params{Memory: 16 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	encoded, err := strong.Hash("pw")
	require.NoError(t, err)

	ok, err := newTestHasher(t).Verify("pw", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_Malformed(t *testing.T) {
	h := newTestHasher(t)

	for _, encoded := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$",
	} {
		_, err := h.Verify("pw", encoded)
		assert.ErrorIs(t, err, ErrMalformedHash, encoded)
	}
}

func TestNewPasswordHasher_RejectsWeakParams(t *testing.T) {
	_, err := NewPasswordHasher(Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	assert.Error(t, err)

	_, err = NewPasswordHasher(DefaultArgon2Params)
	assert.NoError(t, err)
}

func TestTokenDigest(t *testing.T) {
	a := TokenDigest("token")
	assert.Len(t, a, 64)
	assert.Equal(t, a, TokenDigest("token"))
	assert.NotEqual(t, a, TokenDigest("token2"))
	assert.True(t, DigestEqual(a, TokenDigest("token")))
	assert.False(t, DigestEqual(a, TokenDigest("other")))
}
