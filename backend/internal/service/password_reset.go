package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/gallery-dev/gallery/backend/internal/utils/password"
	"github.com/gallery-dev/gallery/backend/internal/utils/token"
	"github.com/gallery-dev/gallery/shared/domain"
	"github.com/gallery-dev/gallery/shared/errors"
	"github.com/gallery-dev/gallery/shared/logger"
)

var ErrInvalidResetToken = &errors.ErrorWithStatusCode{Message: "Invalid or expired reset token", StatusCode: http.StatusBadRequest}

// RequestPasswordReset answers the same way whether or not the email has an account.
func (a *Auth) RequestPasswordReset(ctx context.Context, email domain.Email) error {
	email = strings.TrimSpace(email)
	if err := a.email.IsCorrect(email); err != nil {
		return err
	}

	user, err := a.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !user.Active {
		return nil
	}

	value, err := token.Random(token.DefaultLength)
	if err != nil {
		return err
	}
	vt := domain.VerificationToken{
		Token:   value,
		Type:    domain.PasswordResetToken,
		UserId:  user.Id,
		Expires: a.now().Add(a.cfg.PasswordResetTokenTTL),
	}
	if err := a.store.SaveVerificationToken(ctx, vt); err != nil {
		return err
	}

	link := emailLink(a.cfg.FrontendURL, "reset-password", value)
	a.dispatchEmail(user.Email, "Reset your password", passwordResetBody(user.Name, link, a.cfg.PasswordResetTokenTTL))
	logger.Log.Info("password reset requested", "user_id", user.Id)
	return nil
}

// ResetPassword consumes a reset token once, sets the new password and signs the
// user out everywhere.
func (a *Auth) ResetPassword(ctx context.Context, resetToken string, newPassword domain.Password) error {
	if err := password.CheckStrength(newPassword); err != nil {
		return err
	}
	if resetToken == "" {
		return ErrInvalidResetToken
	}

	vt, err := a.store.VerificationToken(ctx, resetToken)
	if err != nil {
		if errors.IsNotFound(err) {
			return ErrInvalidResetToken
		}
		return err
	}
	now := a.now()
	if vt.Type != domain.PasswordResetToken || vt.UsedAt != nil || token.IsExpiredAt(vt.Expires, now) {
		return ErrInvalidResetToken
	}

	passHash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := a.store.ResetPassword(ctx, resetToken, passHash, now); err != nil {
		if errors.IsNotFound(err) {
			return ErrInvalidResetToken
		}
		return err
	}

	logger.Log.Info("password reset completed", "user_id", vt.UserId)
	return nil
}
