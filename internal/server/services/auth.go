// Package services contains server-side business logic. AuthService is the
// session orchestrator: it verifies credentials, issues and rotates token
// pairs and drives the confirmation-token flows.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/server/auth"
	"github.com/QKhanh04/innerg-api/internal/server/federation"
	"github.com/QKhanh04/innerg-api/internal/server/identity"
	"github.com/QKhanh04/innerg-api/internal/server/mail"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/repomanager"
	"github.com/QKhanh04/innerg-api/internal/timex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/QKhanh04/innerg-api/internal/server/services"

// errRotationLost marks a refresh whose compare-and-set revoke found the
// token already revoked by a concurrent caller.
var errRotationLost = errors.New("refresh token rotated concurrently")

// CredentialStore is the account store the orchestrator relies on.
// identity.Manager implements it.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByName(ctx context.Context, userName string) (*models.User, error)
	Create(ctx context.Context, user *models.User, password string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error

	AddPassword(ctx context.Context, user *models.User, password string) error
	SetPassword(ctx context.Context, user *models.User, password string) error
	CheckPassword(ctx context.Context, user *models.User, password string) (identity.PasswordResult, error)

	RoleExists(ctx context.Context, role string) (bool, error)
	GetRoles(ctx context.Context, userID string) ([]string, error)
	AddToRole(ctx context.Context, userID, role string) error
	RemoveFromRole(ctx context.Context, userID, role string) error

	AddLogin(ctx context.Context, login models.ExternalLogin) error
	RemoveLogin(ctx context.Context, userID, provider string) error
	FindByLogin(ctx context.Context, provider, providerKey string) (*models.User, error)

	GenerateToken(ctx context.Context, userID, purpose string) (string, error)
	ConsumeToken(ctx context.Context, userID, purpose, token string) (bool, error)
	InvalidateToken(ctx context.Context, userID, purpose string) error
}

// TokenSigner mints access tokens and refresh secrets.
type TokenSigner interface {
	IssueAccessToken(p auth.Principal) (string, *auth.Principal, error)
	NewRefreshToken(userID string) (*models.RefreshToken, error)
}

// IdentityVerifier checks a federated identity assertion.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*federation.Identity, error)
}

// AuthResult is returned by every operation that opens a session.
type AuthResult struct {
	AccessToken    string
	RefreshToken   string
	RefreshExpires time.Time
	UserName       string
	Email          string
}

// UserInfo describes the signed-in user.
type UserInfo struct {
	UserName string
	Email    string
	Roles    []string
}

// Options are deployment settings of the orchestrator.
type Options struct {
	DefaultRole          string
	ConfirmEmailURL      string
	ResetPasswordURL     string
	PasswordResetEnabled bool
}

// AuthDeps are the collaborators of AuthService. Logger and Clock are
// optional.
type AuthDeps struct {
	Store    CredentialStore
	Repos    repomanager.RepositoryManager
	Tx       dbx.Transactor
	Signer   TokenSigner
	Verifier IdentityVerifier
	Mailer   mail.Sender
	Logger   logging.Logger
	Clock    timex.Clock
}

// AuthService implements register, login, federated login, refresh rotation,
// logout and the e-mail confirmation flow.
type AuthService struct {
	store    CredentialStore
	repos    repomanager.RepositoryManager
	tx       dbx.Transactor
	signer   TokenSigner
	verifier IdentityVerifier
	mailer   mail.Sender
	logger   logging.Logger
	now      timex.Clock
	tracer   trace.Tracer
	opts     Options
}

func NewAuthService(d AuthDeps, o Options) *AuthService {
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	if d.Clock == nil {
		d.Clock = timex.SystemClock
	}
	if o.DefaultRole == "" {
		o.DefaultRole = common.DefaultRole
	}
	return &AuthService{
		store:    d.Store,
		repos:    d.Repos,
		tx:       d.Tx,
		signer:   d.Signer,
		verifier: d.Verifier,
		mailer:   d.Mailer,
		logger:   d.Logger.With("module", "auth"),
		now:      d.Clock,
		tracer:   otel.Tracer(tracerName),
		opts:     o,
	}
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "AuthService."+name)
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

// Login signs a user in by e-mail or username and password.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (res *AuthResult, err error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer endSpan(span, &err)

	user, err := s.findByEmailOrName(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Unauthorized("Invalid credentials")
		}
		return nil, err
	}
	if !user.EmailConfirmed {
		return nil, common.Unauthorized("Email is not confirmed")
	}

	check, err := s.store.CheckPassword(ctx, user, password)
	if err != nil {
		return nil, err
	}
	switch check {
	case identity.PasswordLockedOut:
		s.logger.Warn(ctx, "login refused, account locked", "user_id", user.ID)
		return nil, common.Unauthorized("Account is locked out")
	case identity.PasswordMismatch:
		return nil, common.Unauthorized("Invalid credentials")
	}

	return s.openSession(ctx, user)
}

func (s *AuthService) findByEmailOrName(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.store.FindByEmail(ctx, identifier)
	if err == nil || !errors.Is(err, common.ErrorNotFound) {
		return user, err
	}
	return s.store.FindByName(ctx, identifier)
}

// openSession revokes every active refresh token of user and persists a new
// one. Both happen in one transaction holding the user row, so concurrent
// logins leave exactly one active token.
func (s *AuthService) openSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	roles, err := s.store.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	access, _, err := s.signer.IssueAccessToken(auth.Principal{
		UserID:   user.ID,
		UserName: user.UserName,
		Email:    user.Email,
		Roles:    roles,
	})
	if err != nil {
		return nil, common.Internal(err)
	}
	refresh, err := s.signer.NewRefreshToken(user.ID)
	if err != nil {
		return nil, common.Internal(err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repos.Users(tx).LockByID(ctx, user.ID); err != nil {
			return err
		}
		tokens := s.repos.RefreshTokens(tx)
		if _, err := tokens.RevokeAllForUser(ctx, user.ID); err != nil {
			return err
		}
		return tokens.Create(ctx, refresh)
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	s.logger.Info(ctx, "session opened", "user_id", user.ID)
	return &AuthResult{
		AccessToken:    access,
		RefreshToken:   refresh.Token,
		RefreshExpires: refresh.Expires,
		UserName:       user.UserName,
		Email:          user.Email,
	}, nil
}

// Refresh redeems a refresh secret for a new token pair. Each secret rotates
// at most once; presenting a revoked secret revokes every active session of
// its owner.
func (s *AuthService) Refresh(ctx context.Context, secret string) (res *AuthResult, err error) {
	ctx, span := s.startSpan(ctx, "Refresh")
	defer endSpan(span, &err)

	if secret == "" {
		return nil, common.Unauthorized("Invalid refresh token")
	}
	found, err := s.repos.RefreshTokens(s.tx.Conn()).FindWithOwner(ctx, secret)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Unauthorized("Invalid refresh token")
		}
		return nil, err
	}

	now := s.now()
	owner := &found.Owner
	if found.Token.IsExpired(now) {
		return nil, common.Unauthorized("Refresh token expired")
	}
	if found.Token.Revoked {
		s.teardown(ctx, owner.ID)
		return nil, common.Unauthorized("Revoked refresh token")
	}
	if owner.IsLockedOut(now) {
		return nil, common.Unauthorized("Account is locked out")
	}

	roles, err := s.store.GetRoles(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	access, _, err := s.signer.IssueAccessToken(auth.Principal{
		UserID:   owner.ID,
		UserName: owner.UserName,
		Email:    owner.Email,
		Roles:    roles,
	})
	if err != nil {
		return nil, common.Internal(err)
	}
	next, err := s.signer.NewRefreshToken(owner.ID)
	if err != nil {
		return nil, common.Internal(err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repos.RefreshTokens(tx)
		won, err := tokens.Revoke(ctx, secret)
		if err != nil {
			return err
		}
		if !won {
			return errRotationLost
		}
		return tokens.Create(ctx, next)
	})
	if errors.Is(err, errRotationLost) {
		s.teardown(ctx, owner.ID)
		return nil, common.Unauthorized("Revoked refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return &AuthResult{
		AccessToken:    access,
		RefreshToken:   next.Token,
		RefreshExpires: next.Expires,
		UserName:       owner.UserName,
		Email:          owner.Email,
	}, nil
}

// teardown revokes every active token of userID after a revoked secret was
// presented again.
func (s *AuthService) teardown(ctx context.Context, userID string) {
	var n int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repos.Users(tx).LockByID(ctx, userID); err != nil {
			return err
		}
		var err error
		n, err = s.repos.RefreshTokens(tx).RevokeAllForUser(ctx, userID)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "refresh token reuse teardown failed", "user_id", userID, "error", err)
		return
	}
	s.logger.Warn(ctx, "refresh token reuse detected, sessions revoked", "user_id", userID, "revoked", n)
}

// Logout revokes one refresh token. Unknown or already revoked secrets are a
// no-op.
func (s *AuthService) Logout(ctx context.Context, secret string) (err error) {
	ctx, span := s.startSpan(ctx, "Logout")
	defer endSpan(span, &err)

	if secret == "" {
		return nil
	}
	if _, err := s.repos.RefreshTokens(s.tx.Conn()).Revoke(ctx, secret); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// LogoutAll revokes every active refresh token of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (err error) {
	ctx, span := s.startSpan(ctx, "LogoutAll")
	defer endSpan(span, &err)

	n, err := s.repos.RefreshTokens(s.tx.Conn()).RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	s.logger.Info(ctx, "all sessions revoked", "user_id", userID, "revoked", n)
	return nil
}

// GetCurrentUserInfo returns the profile of userID.
func (s *AuthService) GetCurrentUserInfo(ctx context.Context, userID string) (info *UserInfo, err error) {
	ctx, span := s.startSpan(ctx, "GetCurrentUserInfo")
	defer endSpan(span, &err)

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound("User not found")
		}
		return nil, err
	}
	roles, err := s.store.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return &UserInfo{UserName: user.UserName, Email: user.Email, Roles: roles}, nil
}
