package services

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/cryptox"
	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/server/auth"
	"github.com/QKhanh04/innerg-api/internal/server/federation"
	"github.com/QKhanh04/innerg-api/internal/server/identity"
	"github.com/QKhanh04/innerg-api/internal/server/mail"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/confirmations"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

var tokenInLink = regexp.MustCompile(`token=([A-Za-z0-9_%-]+)`)

// lastToken pulls the token out of the newest confirmation mail.
func (f *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no mail sent")
	m := tokenInLink.FindStringSubmatch(f.sent[len(f.sent)-1].HTML)
	require.Len(t, m, 2, "no token in mail")
	return m[1]
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeVerifier struct {
	id  *federation.Identity
	err error
}

func (f *fakeVerifier) Verify(context.Context, string) (*federation.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.id
	return &cp, nil
}

func googleIdentity(sub, email string) *federation.Identity {
	return &federation.Identity{Subject: sub, Email: email, EmailVerified: true, Name: "Alice A"}
}

type harness struct {
	svc      *AuthService
	store    *identity.Manager
	repos    *repomanager.MemoryRepositoryManager
	mailer   *fakeMailer
	verifier *fakeVerifier
	clock    *testClock
}

type harnessOption func(*AuthDeps, *Options)

func withStore(wrap func(CredentialStore) CredentialStore) harnessOption {
	return func(d *AuthDeps, _ *Options) { d.Store = wrap(d.Store) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		repos:    repomanager.NewMemoryRepositoryManager(),
		mailer:   &fakeMailer{},
		verifier: &fakeVerifier{id: googleIdentity("google-sub-1", "a@x.com")},
		clock:    &testClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}

	hasher, err := cryptox.NewPasswordHasher(cryptox.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	require.NoError(t, err)
	tx := dbx.NewLocalTransactor()
	h.store = identity.NewManager(h.repos, tx, hasher, confirmations.NewMemoryStore(h.clock.Now), identity.WithClock(h.clock.Now))
	require.NoError(t, h.store.EnsureRoles(context.Background(), "User", "Admin"))

	signer, err := auth.NewSigner([]byte("0123456789abcdef0123456789abcdef"), "innerg", "innerg-clients",
		15*time.Minute, 7*24*time.Hour, auth.WithClock(h.clock.Now))
	require.NoError(t, err)

	deps := AuthDeps{
		Store:    h.store,
		Repos:    h.repos,
		Tx:       tx,
		Signer:   signer,
		Verifier: h.verifier,
		Mailer:   h.mailer,
		Clock:    h.clock.Now,
	}
	o := Options{DefaultRole: "User", ConfirmEmailURL: "https://app.test/confirm-email"}
	for _, opt := range opts {
		opt(&deps, &o)
	}
	h.svc = NewAuthService(deps, o)
	return h
}

// registerConfirmed registers a user and confirms the e-mail.
func (h *harness) registerConfirmed(t *testing.T, name, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.Register(ctx, RegisterRequest{UserName: name, Email: email, Password: password, ConfirmPassword: password})
	require.NoError(t, err)
	u, err := h.store.FindByEmail(ctx, email)
	require.NoError(t, err)
	require.NoError(t, h.svc.ConfirmEmail(ctx, u.ID, h.mailer.lastToken(t)))
}

func (h *harness) userID(t *testing.T, email string) string {
	t.Helper()
	u, err := h.store.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ID
}

// activeTokens returns the non-revoked secrets of userID.
func (h *harness) activeTokens(userID string) []string {
	var out []string
	for _, tok := range h.repos.MemoryRefreshTokens().ForUser(userID) {
		if !tok.Revoked {
			out = append(out, tok.Token)
		}
	}
	return out
}

func requireAppError(t *testing.T, err error, kind error, message string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, message, appErr.Message)
}
