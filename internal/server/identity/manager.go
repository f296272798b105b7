// Package identity implements the credential store: account lookups, password
// hashing and checking with lockout, roles, external-login links and
// purpose-scoped one-time tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/cryptox"
	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/confirmations"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/repomanager"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/users"
	"github.com/QKhanh04/innerg-api/internal/timex"
)

const oneTimeTokenSize = 32

// PasswordResult is the outcome of CheckPassword.
type PasswordResult int

const (
	PasswordOK PasswordResult = iota
	PasswordMismatch
	PasswordLockedOut
)

// Policy holds lockout and token settings.
type Policy struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	TokenTTL          time.Duration
}

// DefaultPolicy locks an account for 15 minutes after 5 bad passwords.
var DefaultPolicy = Policy{
	MaxFailedAttempts: 5,
	LockoutDuration:   15 * time.Minute,
	TokenTTL:          24 * time.Hour,
}

// Hasher turns passwords into stored hashes and back.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Manager is the credential store over the repositories.
type Manager struct {
	repos  repomanager.RepositoryManager
	tx     dbx.Transactor
	hasher Hasher
	tokens confirmations.Store
	policy Policy
	now    timex.Clock
}

type Option func(*Manager)

func WithClock(now timex.Clock) Option {
	return func(m *Manager) { m.now = now }
}

func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

func NewManager(repos repomanager.RepositoryManager, tx dbx.Transactor, hasher Hasher, tokens confirmations.Store, opts ...Option) *Manager {
	m := &Manager{
		repos:  repos,
		tx:     tx,
		hasher: hasher,
		tokens: tokens,
		policy: DefaultPolicy,
		now:    timex.SystemClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's notion of the current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

func (m *Manager) userRepo() users.Repository {
	return m.repos.Users(m.tx.Conn())
}

// FindByID returns common.ErrorNotFound when the user is absent.
func (m *Manager) FindByID(ctx context.Context, id string) (*models.User, error) {
	return m.userRepo().GetByID(ctx, id)
}

func (m *Manager) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.userRepo().GetByEmail(ctx, email)
}

func (m *Manager) FindByName(ctx context.Context, userName string) (*models.User, error) {
	return m.userRepo().GetByUserName(ctx, userName)
}

// Create stores user. A non-empty password is checked against the policy and
// hashed first. Uniqueness violations come back as Conflict errors.
func (m *Manager) Create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if password != "" {
		hash, err := m.hashPassword(password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	u, err := m.userRepo().Create(ctx, user)
	if err != nil {
		return nil, conflictError(err)
	}
	return u, nil
}

// Update writes user back. Uniqueness violations come back as Conflict errors.
func (m *Manager) Update(ctx context.Context, user *models.User) error {
	if err := m.userRepo().Update(ctx, user); err != nil {
		return conflictError(err)
	}
	return nil
}

// Delete removes the user. Only used to undo a partial account creation.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.userRepo().Delete(ctx, id)
}

// AddPassword sets the first password of an account that has none.
func (m *Manager) AddPassword(ctx context.Context, user *models.User, password string) error {
	if user.HasPassword() {
		return common.BadRequest("User already has a password set")
	}
	return m.SetPassword(ctx, user, password)
}

// SetPassword replaces the password hash and clears any lockout.
func (m *Manager) SetPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := m.hashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.AccessFailedCount = 0
	user.LockoutEnd = nil
	return m.Update(ctx, user)
}

func (m *Manager) hashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return "", common.Internal(err)
	}
	return hash, nil
}

// CheckPassword verifies password and maintains the lockout counters. A
// locked account is reported without looking at the password. Reaching the
// failure threshold starts a lockout window and reports PasswordLockedOut.
func (m *Manager) CheckPassword(ctx context.Context, user *models.User, password string) (PasswordResult, error) {
	if user.IsLockedOut(m.now()) {
		return PasswordLockedOut, nil
	}

	ok := false
	if user.HasPassword() {
		var err error
		ok, err = m.hasher.Verify(password, user.PasswordHash)
		if err != nil && !errors.Is(err, cryptox.ErrMalformedHash) {
			return PasswordMismatch, common.Internal(err)
		}
	}

	result := PasswordOK
	err := m.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := m.repos.Users(tx)
		u, err := repo.LockByID(ctx, user.ID)
		if err != nil {
			return err
		}
		now := m.now()
		if u.IsLockedOut(now) {
			result = PasswordLockedOut
			return nil
		}

		if ok {
			if u.AccessFailedCount == 0 && u.LockoutEnd == nil {
				return nil
			}
			u.AccessFailedCount = 0
			u.LockoutEnd = nil
			return repo.Update(ctx, u)
		}

		result = PasswordMismatch
		u.AccessFailedCount++
		if m.policy.MaxFailedAttempts > 0 && u.AccessFailedCount >= m.policy.MaxFailedAttempts {
			end := now.Add(m.policy.LockoutDuration)
			u.LockoutEnd = &end
			u.AccessFailedCount = 0
			result = PasswordLockedOut
		}
		return repo.Update(ctx, u)
	})
	if err != nil {
		return PasswordMismatch, fmt.Errorf("update lockout state: %w", err)
	}
	return result, nil
}

// EnsureRoles creates any missing role.
func (m *Manager) EnsureRoles(ctx context.Context, roles ...string) error {
	repo := m.userRepo()
	for _, r := range roles {
		if err := repo.EnsureRole(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) RoleExists(ctx context.Context, role string) (bool, error) {
	return m.userRepo().RoleExists(ctx, role)
}

func (m *Manager) GetRoles(ctx context.Context, userID string) ([]string, error) {
	return m.userRepo().GetRoles(ctx, userID)
}

func (m *Manager) AddToRole(ctx context.Context, userID, role string) error {
	return m.userRepo().AddToRole(ctx, userID, role)
}

func (m *Manager) RemoveFromRole(ctx context.Context, userID, role string) error {
	return m.userRepo().RemoveFromRole(ctx, userID, role)
}

// AddLogin links a federated identity. An existing link for the same
// provider and key is a Conflict.
func (m *Manager) AddLogin(ctx context.Context, login models.ExternalLogin) error {
	if err := m.userRepo().AddLogin(ctx, login); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return &common.AppError{Kind: common.ErrorConflict, Message: "External login already linked", Err: err}
		}
		return err
	}
	return nil
}

func (m *Manager) RemoveLogin(ctx context.Context, userID, provider string) error {
	return m.userRepo().RemoveLogin(ctx, userID, provider)
}

func (m *Manager) FindByLogin(ctx context.Context, provider, providerKey string) (*models.User, error) {
	return m.userRepo().FindByLogin(ctx, provider, providerKey)
}

// GenerateToken issues a new one-time token for (userID, purpose). Any
// earlier token for the same pair stops working.
func (m *Manager) GenerateToken(ctx context.Context, userID, purpose string) (string, error) {
	token, err := common.MakeRandURLSafeString(oneTimeTokenSize)
	if err != nil {
		return "", common.Internal(err)
	}
	if err := m.tokens.Set(ctx, userID, purpose, cryptox.TokenDigest(token), m.policy.TokenTTL); err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeToken reports whether token is the live one for (userID, purpose)
// and, if so, burns it.
func (m *Manager) ConsumeToken(ctx context.Context, userID, purpose, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return m.tokens.Consume(ctx, userID, purpose, cryptox.TokenDigest(token))
}

func (m *Manager) InvalidateToken(ctx context.Context, userID, purpose string) error {
	return m.tokens.Invalidate(ctx, userID, purpose)
}

const userNameTaken = "Username already exists"

// IsUserNameTaken reports whether err is the conflict Create returns for a
// user name that is already in use.
func IsUserNameTaken(err error) bool {
	var appErr *common.AppError
	return errors.As(err, &appErr) && appErr.Kind == common.ErrorConflict && appErr.Message == userNameTaken
}

// conflictError maps unique violations on users to client-facing conflicts.
func conflictError(err error) error {
	if !errors.Is(err, common.ErrorAlreadyExists) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "username"):
		return &common.AppError{Kind: common.ErrorConflict, Message: userNameTaken, Err: err}
	case strings.Contains(msg, "email"):
		return &common.AppError{Kind: common.ErrorConflict, Message: "Email already exists", Err: err}
	default:
		return &common.AppError{Kind: common.ErrorConflict, Message: "User already exists", Err: err}
	}
}
