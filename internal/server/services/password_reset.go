package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/identity"
	"github.com/QKhanh04/innerg-api/internal/server/mail"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/confirmations"
)

func (s *AuthService) resetEnabled() error {
	if !s.opts.PasswordResetEnabled {
		return common.BadRequest("Password reset is disabled")
	}
	return nil
}

// RequestPasswordReset mails the account id and a reset token, together
// with a reset link when one is configured. Unknown addresses succeed
// silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := s.startSpan(ctx, "RequestPasswordReset")
	defer endSpan(span, &err)

	if err := s.resetEnabled(); err != nil {
		return err
	}
	user, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}

	token, err := s.store.GenerateToken(ctx, user.ID, confirmations.PurposeResetPassword)
	if err != nil {
		return err
	}
	var link string
	if s.opts.ResetPasswordURL != "" {
		link = mail.ConfirmationLink(s.opts.ResetPasswordURL, user.ID, token)
	}
	msg, err := mail.PasswordResetMessage(user.Email, link, user.ID, token)
	if err != nil {
		return common.Internal(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return common.ExternalService("Failed to send password reset email", err)
	}
	return nil
}

// ResetPassword sets a new password with a reset token and ends every
// session of the user.
func (s *AuthService) ResetPassword(ctx context.Context, userID, token, newPassword string) (err error) {
	ctx, span := s.startSpan(ctx, "ResetPassword")
	defer endSpan(span, &err)

	if err := s.resetEnabled(); err != nil {
		return err
	}
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound("User not found")
		}
		return err
	}
	if err := identity.ValidatePassword(newPassword); err != nil {
		return err
	}

	ok, err := s.store.ConsumeToken(ctx, user.ID, confirmations.PurposeResetPassword, token)
	if err != nil {
		return err
	}
	if !ok {
		return common.BadRequest("Invalid or expired reset token")
	}
	if err := s.store.SetPassword(ctx, user, newPassword); err != nil {
		return err
	}
	if _, err := s.repos.RefreshTokens(s.tx.Conn()).RevokeAllForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("revoke sessions after reset: %w", err)
	}
	return nil
}
