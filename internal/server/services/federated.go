package services

import (
	"context"
	"errors"
	"strings"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/federation"
	"github.com/QKhanh04/innerg-api/internal/server/identity"
	"github.com/QKhanh04/innerg-api/internal/server/models"
)

const maxUserNameAttempts = 5

// LoginWithFederatedIdentity signs in with a Google ID token, creating or
// linking the local account as needed.
func (s *AuthService) LoginWithFederatedIdentity(ctx context.Context, idToken string) (res *AuthResult, err error) {
	ctx, span := s.startSpan(ctx, "LoginWithFederatedIdentity")
	defer endSpan(span, &err)

	id, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if !id.EmailVerified || strings.TrimSpace(id.Email) == "" {
		return nil, common.Unauthorized("Email is not verified by the identity provider")
	}

	user, err := s.resolveFederatedUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsLockedOut(s.now()) {
		return nil, common.Unauthorized("Account is locked out")
	}
	return s.openSession(ctx, user)
}

// resolveFederatedUser finds the account by its link, then by e-mail, and
// creates it when neither exists. The returned user is always linked.
func (s *AuthService) resolveFederatedUser(ctx context.Context, id *federation.Identity) (*models.User, error) {
	user, err := s.store.FindByLogin(ctx, common.GoogleProvider, id.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	user, err = s.store.FindByEmail(ctx, id.Email)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		user, err = s.createFederatedUser(ctx, id)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		// lost a race with a concurrent first sign-in
		if linked, lerr := s.store.FindByLogin(ctx, common.GoogleProvider, id.Subject); lerr == nil {
			return linked, nil
		}
		return nil, err
	case err != nil:
		return nil, err
	}

	return s.linkExisting(ctx, user, id)
}

// linkExisting links the provider identity to an account found by e-mail.
// The provider has verified the address, so the e-mail becomes confirmed and
// a password set on the still-unconfirmed account is dropped.
func (s *AuthService) linkExisting(ctx context.Context, user *models.User, id *federation.Identity) (*models.User, error) {
	if !user.EmailConfirmed {
		user.EmailConfirmed = true
		user.PasswordHash = ""
		if err := s.store.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	err := s.store.AddLogin(ctx, s.externalLogin(user.ID, id))
	if err != nil {
		if !errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		linked, lerr := s.store.FindByLogin(ctx, common.GoogleProvider, id.Subject)
		if lerr != nil || linked.ID != user.ID {
			return nil, err
		}
	}
	s.logger.Info(ctx, "federated identity linked", "user_id", user.ID, "provider", common.GoogleProvider)
	return user, nil
}

func (s *AuthService) createFederatedUser(ctx context.Context, id *federation.Identity) (*models.User, error) {
	var user *models.User
	sg := &saga{logger: s.logger, steps: []step{
		{
			name: "create user",
			do: func(ctx context.Context) error {
				u, err := s.createWithFreeUserName(ctx, id.Email)
				user = u
				return err
			},
			undo: func(ctx context.Context) error { return s.store.Delete(ctx, user.ID) },
		},
		s.assignDefaultRole(&user),
		{
			name: "link external login",
			do:   func(ctx context.Context) error { return s.store.AddLogin(ctx, s.externalLogin(user.ID, id)) },
			undo: func(ctx context.Context) error {
				return s.store.RemoveLogin(ctx, user.ID, common.GoogleProvider)
			},
		},
	}}
	if err := sg.run(ctx); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "federated user created", "user_id", user.ID)
	return user, nil
}

// createWithFreeUserName creates a confirmed, password-less account named
// after email. When a local account already uses that name, a short random
// suffix is appended until a free one is found.
func (s *AuthService) createWithFreeUserName(ctx context.Context, email string) (*models.User, error) {
	name := email
	for attempt := 0; ; attempt++ {
		u, err := s.store.Create(ctx, &models.User{
			UserName:       name,
			Email:          email,
			EmailConfirmed: true,
		}, "")
		if err == nil || !identity.IsUserNameTaken(err) || attempt == maxUserNameAttempts {
			return u, err
		}
		suffix, serr := common.MakeRandHexString(3)
		if serr != nil {
			return nil, serr
		}
		name = email + "-" + suffix
	}
}

func (s *AuthService) externalLogin(userID string, id *federation.Identity) models.ExternalLogin {
	display := id.Name
	if display == "" {
		display = common.GoogleProvider
	}
	return models.ExternalLogin{
		Provider:    common.GoogleProvider,
		ProviderKey: id.Subject,
		UserID:      userID,
		DisplayName: display,
	}
}
