package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/identity"
	"github.com/QKhanh04/innerg-api/internal/server/mail"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/confirmations"
)

// RegisterRequest carries the sign-up form.
type RegisterRequest struct {
	UserName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// RegisterResult tells the client whether an e-mail confirmation is pending.
type RegisterResult struct {
	RequiresEmailConfirmation bool
}

// Register creates a local account, or attaches a password to an account that
// so far only signs in through a federated provider.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (res *RegisterResult, err error) {
	ctx, span := s.startSpan(ctx, "Register")
	defer endSpan(span, &err)

	req.UserName = strings.TrimSpace(req.UserName)
	req.Email = strings.TrimSpace(req.Email)

	if req.Password != req.ConfirmPassword {
		return nil, common.ValidationField("confirmPassword", "Passwords do not match")
	}

	existing, err := s.store.FindByEmail(ctx, req.Email)
	switch {
	case err == nil && !existing.HasPassword():
		if err := s.attachPassword(ctx, existing, req); err != nil {
			return nil, err
		}
		return &RegisterResult{RequiresEmailConfirmation: false}, nil
	case err == nil:
		return nil, common.Conflict("Email already exists")
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}

	if _, err := s.store.FindByName(ctx, req.UserName); err == nil {
		return nil, common.Conflict("Username already exists")
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	if err := identity.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	var user *models.User
	var token string
	sg := &saga{logger: s.logger, steps: []step{
		{
			name: "create user",
			do: func(ctx context.Context) error {
				u, err := s.store.Create(ctx, &models.User{UserName: req.UserName, Email: req.Email}, req.Password)
				user = u
				return err
			},
			undo: func(ctx context.Context) error { return s.store.Delete(ctx, user.ID) },
		},
		s.assignDefaultRole(&user),
		{
			name: "generate confirmation token",
			do: func(ctx context.Context) error {
				t, err := s.store.GenerateToken(ctx, user.ID, confirmations.PurposeConfirmEmail)
				token = t
				return err
			},
			undo: func(ctx context.Context) error {
				return s.store.InvalidateToken(ctx, user.ID, confirmations.PurposeConfirmEmail)
			},
		},
		{
			name: "send confirmation mail",
			do:   func(ctx context.Context) error { return s.sendConfirmation(ctx, user, token) },
		},
	}}
	if err := sg.run(ctx); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return &RegisterResult{RequiresEmailConfirmation: true}, nil
}

// attachPassword gives a federation-only account a username and password.
// Its e-mail was verified by the provider, so no confirmation is sent.
func (s *AuthService) attachPassword(ctx context.Context, user *models.User, req RegisterRequest) error {
	other, err := s.store.FindByName(ctx, req.UserName)
	switch {
	case err == nil && other.ID != user.ID:
		return common.Conflict("Username already exists")
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		return err
	}

	user.UserName = req.UserName
	if err := s.store.AddPassword(ctx, user, req.Password); err != nil {
		return err
	}
	s.logger.Info(ctx, "password attached to federated account", "user_id", user.ID)
	return nil
}

// assignDefaultRole is the saga step shared by local and federated account
// creation. *user is read when the step runs.
func (s *AuthService) assignDefaultRole(user **models.User) step {
	role := s.opts.DefaultRole
	return step{
		name: "assign default role",
		do: func(ctx context.Context) error {
			ok, err := s.store.RoleExists(ctx, role)
			if err != nil {
				return err
			}
			if !ok {
				return &common.AppError{
					Kind:    common.ErrorConfiguration,
					Message: fmt.Sprintf("Default role %s is not configured", role),
				}
			}
			return s.store.AddToRole(ctx, (*user).ID, role)
		},
		undo: func(ctx context.Context) error { return s.store.RemoveFromRole(ctx, (*user).ID, role) },
	}
}

func (s *AuthService) sendConfirmation(ctx context.Context, user *models.User, token string) error {
	link := mail.ConfirmationLink(s.opts.ConfirmEmailURL, user.ID, token)
	msg, err := mail.ConfirmationMessage(user.Email, link)
	if err != nil {
		return common.Internal(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return common.ExternalService("Failed to send confirmation email", err)
	}
	return nil
}

// ConfirmEmail consumes a confirmation token and marks the e-mail confirmed.
// token arrives URL-encoded, exactly as it appears in the confirmation link,
// and is decoded here once.
func (s *AuthService) ConfirmEmail(ctx context.Context, userID, token string) (err error) {
	ctx, span := s.startSpan(ctx, "ConfirmEmail")
	defer endSpan(span, &err)

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound("User not found")
		}
		return err
	}

	invalid := common.BadRequest("Invalid or expired confirmation token")
	decoded, err := url.QueryUnescape(token)
	if err != nil {
		return invalid
	}
	ok, err := s.store.ConsumeToken(ctx, user.ID, confirmations.PurposeConfirmEmail, decoded)
	if err != nil {
		return err
	}
	if !ok {
		return invalid
	}

	user.EmailConfirmed = true
	if err := s.store.Update(ctx, user); err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	s.logger.Info(ctx, "email confirmed", "user_id", user.ID)
	return nil
}

// ResendConfirmation issues a fresh confirmation token, which replaces any
// earlier one, and mails it.
func (s *AuthService) ResendConfirmation(ctx context.Context, email string) (err error) {
	ctx, span := s.startSpan(ctx, "ResendConfirmation")
	defer endSpan(span, &err)

	user, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound("User not found")
		}
		return err
	}
	if user.EmailConfirmed {
		return common.BadRequest("Email already confirmed")
	}

	token, err := s.store.GenerateToken(ctx, user.ID, confirmations.PurposeConfirmEmail)
	if err != nil {
		return err
	}
	return s.sendConfirmation(ctx, user, token)
}
