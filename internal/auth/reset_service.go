// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// Password reset defaults.
const (
	DefaultResetTokenTTL = 30 * time.Minute
	DefaultMailTimeout   = 10 * time.Second
	DefaultResetSubject  = "Reset your password"
)

// Messages the boundary returns for the reset flow. The request message is
// the same whether or not the email is registered.
const (
	GenericResetMessage   = "If that email is registered, a reset link has been sent."
	ResetCompletedMessage = "Your password has been reset. Please sign in again."
)

// ResetConfig configures the password reset workflow. Zero durations and an
// empty subject select the defaults; LinkBase is required.
type ResetConfig struct {
	LinkBase    string
	TokenTTL    time.Duration
	MailTimeout time.Duration
	Subject     string
}

// ResetDeps are the collaborators of PasswordResetService.
type ResetDeps struct {
	Users         UserRepository
	Resets        PasswordResetRepository
	RefreshTokens RefreshTokenRepository
	Transactor    Transactor
	Hasher        PasswordHasher
	Mailer        Mailer
}

// PasswordResetService issues single-use reset links and redeems them.
type PasswordResetService struct {
	deps ResetDeps
	cfg  ResetConfig
	opts serviceOptions
}

// NewPasswordResetService creates a PasswordResetService.
// Returns an error if any dependency is nil or the config is invalid.
func NewPasswordResetService(deps ResetDeps, cfg ResetConfig, opts ...Option) (*PasswordResetService, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Errorf("user repository is required")
	case deps.Resets == nil:
		return nil, oops.Errorf("password reset repository is required")
	case deps.RefreshTokens == nil:
		return nil, oops.Errorf("refresh token repository is required")
	case deps.Transactor == nil:
		return nil, oops.Errorf("transactor is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Mailer == nil:
		return nil, oops.Errorf("mailer is required")
	}
	if cfg.LinkBase == "" {
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("reset link base URL is required")
	}
	if cfg.TokenTTL < 0 || cfg.MailTimeout < 0 {
		return nil, oops.Code("RESET_INVALID_CONFIG").
			With("token_ttl", cfg.TokenTTL.String()).
			With("mail_timeout", cfg.MailTimeout.String()).
			Errorf("durations cannot be negative")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultResetTokenTTL
	}
	if cfg.MailTimeout == 0 {
		cfg.MailTimeout = DefaultMailTimeout
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultResetSubject
	}
	return &PasswordResetService{deps: deps, cfg: cfg, opts: newServiceOptions(opts)}, nil
}

// RequestReset mails a reset link if email belongs to a user. It returns nil
// for unknown emails so that callers cannot probe for accounts. Any earlier
// reset of the user is invalidated.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (err error) {
	ctx, done := s.opts.instrument(ctx, OpRequestReset)
	defer done(&err)

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}

	user, err := s.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.opts.logger.DebugContext(ctx, "reset requested for unknown email")
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if _, err := s.deps.Resets.DeleteByUser(ctx, user.ID); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "delete prior resets").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	secret, hash, err := GenerateToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	now := s.opts.now()
	reset, err := NewPasswordReset(user.ID, hash, now, now.Add(s.cfg.TokenTTL))
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "build password reset").
			Wrap(err)
	}
	if err := s.deps.Resets.Create(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "persist password reset").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	body := resetEmailBody(ResetLink(s.cfg.LinkBase, secret), s.cfg.TokenTTL)
	if err := s.send(ctx, user.Email, s.cfg.Subject, body); err != nil {
		return oops.Code("RESET_MAIL_FAILED").
			With("user_id", user.ID.String()).
			With("timeout", s.cfg.MailTimeout.String()).
			Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID.String())
	return nil
}

// send delivers through the Mailer but gives up after MailTimeout even if
// the Mailer ignores ctx.
func (s *PasswordResetService) send(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- s.deps.Mailer.Send(ctx, to, subject, body)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConfirmReset redeems a reset secret. In one transaction it locks the
// reset, stores the new password digest, marks the reset used and revokes
// every session of the user. Unknown, used and expired secrets all return
// the same unauthorized error.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, secret, newPassword string) (err error) {
	ctx, done := s.opts.instrument(ctx, OpConfirmReset)
	defer done(&err)

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if secret == "" {
		return oops.Code("RESET_TOKEN_INVALID").
			With("reason", "empty token").
			Wrap(errResetTokenInvalid)
	}

	tokenHash := HashToken(secret)
	now := s.opts.now()
	var revoked int64

	err = s.deps.Transactor.InTransaction(ctx, func(ctx context.Context) error {
		reset, err := s.deps.Resets.GetActiveByTokenHash(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code("RESET_TOKEN_INVALID").
					With("reason", "unknown or used token").
					Wrap(errResetTokenInvalid)
			}
			return oops.Code("RESET_CONFIRM_FAILED").
				With("operation", "get reset by token hash").
				Wrap(err)
		}
		if reset.IsUsed() || reset.IsExpiredAt(now) {
			return oops.Code("RESET_TOKEN_INVALID").
				With("reason", "expired token").
				With("user_id", reset.UserID.String()).
				Wrap(errResetTokenInvalid)
		}

		hash, err := s.deps.Hasher.Hash(newPassword)
		if err != nil {
			return oops.Code("RESET_CONFIRM_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		if err := s.deps.Users.UpdatePassword(ctx, reset.UserID, hash); err != nil {
			return oops.Code("RESET_CONFIRM_FAILED").
				With("operation", "update password").
				With("user_id", reset.UserID.String()).
				Wrap(err)
		}

		if err := s.deps.Resets.MarkUsed(ctx, reset.ID, now); err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code("RESET_TOKEN_INVALID").
					With("reason", "redeemed concurrently").
					Wrap(errResetTokenInvalid)
			}
			return oops.Code("RESET_CONFIRM_FAILED").
				With("operation", "mark reset used").
				With("reset_id", reset.ID.String()).
				Wrap(err)
		}

		revoked, err = s.deps.RefreshTokens.DeleteByUser(ctx, reset.UserID)
		if err != nil {
			return oops.Code("RESET_CONFIRM_FAILED").
				With("operation", "revoke sessions").
				With("user_id", reset.UserID.String()).
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindUnauthorized {
			return err
		}
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "transaction").
			Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "password reset completed", "sessions_revoked", revoked)
	return nil
}

func resetEmailBody(link string, ttl time.Duration) string {
	return fmt.Sprintf(`Someone asked to reset the password for this account.

Open the link below to choose a new password:

%s

The link expires in %d minutes and works once. If you did not ask for a reset, you can ignore this email.
`, link, int(ttl.Minutes()))
}
