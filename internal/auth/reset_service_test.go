// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/authtest"
	"github.com/holomush/holoauth/pkg/errutil"
)

var resetLinkPattern = regexp.MustCompile(`https://app\.example\.com/reset\?token=([0-9a-f]{64})`)

// requestResetSecret requests a reset for email and extracts the secret from the mailed link.
func (f *fixture) requestResetSecret(t *testing.T, email string) string {
	t.Helper()
	require.NoError(t, f.reset.RequestReset(context.Background(), email))
	msg, ok := f.mailer.Last()
	require.True(t, ok, "expected a reset email")
	m := resetLinkPattern.FindStringSubmatch(msg.Body)
	require.Len(t, m, 2, "reset link not found in body: %s", msg.Body)
	return m[1]
}

func TestNewPasswordResetService(t *testing.T) {
	f := newFixture(t)
	cfg := auth.ResetConfig{LinkBase: "https://app.example.com"}

	tests := []struct {
		name    string
		mutate  func(*auth.ResetDeps, *auth.ResetConfig)
		wantErr string
	}{
		{"missing users", func(d *auth.ResetDeps, _ *auth.ResetConfig) { d.Users = nil }, "user repository is required"},
		{"missing resets", func(d *auth.ResetDeps, _ *auth.ResetConfig) { d.Resets = nil }, "password reset repository is required"},
		{"missing refresh tokens", func(d *auth.ResetDeps, _ *auth.ResetConfig) { d.RefreshTokens = nil }, "refresh token repository is required"},
		{"missing transactor", func(d *auth.ResetDeps, _ *auth.ResetConfig) { d.Transactor = nil }, "transactor is required"},
		{"missing hasher", func(d *auth.ResetDeps, _ *auth.ResetConfig) { d.Hasher = nil }, "password hasher is required"},
		{"missing mailer", func(d *auth.ResetDeps, _ *auth.ResetConfig) { d.Mailer = nil }, "mailer is required"},
		{"missing link base", func(_ *auth.ResetDeps, c *auth.ResetConfig) { c.LinkBase = "" }, "link base URL is required"},
		{"negative ttl", func(_ *auth.ResetDeps, c *auth.ResetConfig) { c.TokenTTL = -time.Minute }, "cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, c := f.resetDeps(), cfg
			tt.mutate(&deps, &c)
			_, err := auth.NewPasswordResetService(deps, c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResetLink(t *testing.T) {
	assert.Equal(t, "https://x.io/reset?token=abc", auth.ResetLink("https://x.io/", "abc"))
	assert.Equal(t, "https://x.io/reset?token=abc", auth.ResetLink("https://x.io", "abc"))
	assert.Equal(t, "https://x.io/app/reset?token=a%2Bb%26c", auth.ResetLink("https://x.io/app//", "a+b&c"))
}

func TestPasswordResetService_RequestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("mails a single-use link to the user", func(t *testing.T) {
		f := newFixture(t)
		res := f.register(t, "r@example.com", "Goodpass1")

		secret := f.requestResetSecret(t, "R@Example.com")
		msg, _ := f.mailer.Last()
		assert.Equal(t, "r@example.com", msg.To)
		assert.Equal(t, auth.DefaultResetSubject, msg.Subject)
		assert.Contains(t, msg.Body, "30 minutes")

		resets := f.store.ResetsFor(res.User.ID)
		require.Len(t, resets, 1)
		assert.Equal(t, auth.HashToken(secret), resets[0].TokenHash)
		assert.True(t, resets[0].ExpiresAt.Equal(f.clock.Now().Add(auth.DefaultResetTokenTTL)))
		assert.Nil(t, resets[0].UsedAt)
	})

	t.Run("link base trailing slash is trimmed", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "slash@example.com", "Goodpass1")
		require.NoError(t, f.reset.RequestReset(ctx, "slash@example.com"))

		msg, _ := f.mailer.Last()
		assert.NotContains(t, msg.Body, "example.com//reset")
		link := resetLinkPattern.FindString(msg.Body)
		u, err := url.Parse(link)
		require.NoError(t, err)
		assert.Equal(t, "/reset", u.Path)
	})

	t.Run("unknown email succeeds silently", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.reset.RequestReset(ctx, "ghost@example.com"))
		assert.Empty(t, f.mailer.Messages())
	})

	t.Run("malformed email is a validation error", func(t *testing.T) {
		f := newFixture(t)
		err := f.reset.RequestReset(ctx, "nope")
		require.Error(t, err)
		assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	})

	t.Run("new request supersedes the previous one", func(t *testing.T) {
		f := newFixture(t)
		res := f.register(t, "twice@example.com", "Goodpass1")

		first := f.requestResetSecret(t, "twice@example.com")
		second := f.requestResetSecret(t, "twice@example.com")
		assert.NotEqual(t, first, second)
		assert.Len(t, f.store.ResetsFor(res.User.ID), 1)

		err := f.reset.ConfirmReset(ctx, first, "Newpass123")
		require.Error(t, err)
		assert.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
		require.NoError(t, f.reset.ConfirmReset(ctx, second, "Newpass123"))
	})

	t.Run("mailer failure is internal", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "mailfail@example.com", "Goodpass1")

		mailer := &authtest.MockMailer{}
		mailer.On("Send", mock.Anything, "mailfail@example.com", auth.DefaultResetSubject, mock.AnythingOfType("string")).
			Return(errors.New("550 mailbox unavailable"))
		deps := f.resetDeps()
		deps.Mailer = mailer
		svc, err := auth.NewPasswordResetService(deps, auth.ResetConfig{LinkBase: "https://app.example.com"})
		require.NoError(t, err)

		err = svc.RequestReset(ctx, "mailfail@example.com")
		require.Error(t, err)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		assert.Equal(t, "internal error", auth.PublicMessage(err))
		mailer.AssertExpectations(t)
	})

	t.Run("slow mailer is bounded by the timeout", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		f := newFixture(t)
		f.register(t, "slow@example.com", "Goodpass1")

		release := make(chan time.Time)
		mailer := &authtest.MockMailer{}
		mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			WaitUntil(release).
			Return(nil)
		deps := f.resetDeps()
		deps.Mailer = mailer
		svc, err := auth.NewPasswordResetService(deps, auth.ResetConfig{
			LinkBase:    "https://app.example.com",
			MailTimeout: 50 * time.Millisecond,
		})
		require.NoError(t, err)

		start := time.Now()
		err = svc.RequestReset(ctx, "slow@example.com")
		elapsed := time.Since(start)
		close(release)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, "RESET_MAIL_FAILED")
		assert.Less(t, elapsed, 5*time.Second)
	})
}

func TestPasswordResetService_ConfirmReset(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds exactly once", func(t *testing.T) {
		f := newFixture(t)
		res := f.register(t, "once@example.com", "Goodpass1")
		secret := f.requestResetSecret(t, "once@example.com")

		require.NoError(t, f.reset.ConfirmReset(ctx, secret, "Newpass123"))

		err := f.reset.ConfirmReset(ctx, secret, "Another123")
		require.Error(t, err)
		assert.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
		assert.Equal(t, "invalid or expired reset token", auth.PublicMessage(err))

		_, err = f.session.Login(ctx, "once@example.com", "Newpass123")
		assert.NoError(t, err, "first confirm must have changed the password")
		_, err = f.session.Login(ctx, "once@example.com", "Goodpass1")
		assert.Error(t, err)

		resets := f.store.ResetsFor(res.User.ID)
		require.Len(t, resets, 1)
		require.NotNil(t, resets[0].UsedAt)
	})

	t.Run("revokes every refresh token issued before", func(t *testing.T) {
		f := newFixture(t)
		reg := f.register(t, "revoke@example.com", "Goodpass1")
		login, err := f.session.Login(ctx, "revoke@example.com", "Goodpass1")
		require.NoError(t, err)
		secret := f.requestResetSecret(t, "revoke@example.com")

		require.NoError(t, f.reset.ConfirmReset(ctx, secret, "Newpass123"))
		assert.Equal(t, 0, f.store.RefreshTokenCount(reg.User.ID))

		for _, old := range []string{reg.RefreshToken, login.RefreshToken} {
			_, err := f.session.Refresh(ctx, old)
			require.Error(t, err)
			assert.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
		}
	})

	t.Run("expired token is invalid and leaves the password", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "late@example.com", "Goodpass1")
		secret := f.requestResetSecret(t, "late@example.com")
		f.clock.Advance(auth.DefaultResetTokenTTL + time.Second)

		err := f.reset.ConfirmReset(ctx, secret, "Newpass123")
		require.Error(t, err)
		assert.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_INVALID")

		_, err = f.session.Login(ctx, "late@example.com", "Goodpass1")
		assert.NoError(t, err)
	})

	t.Run("unknown, used and expired share one message", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "same@example.com", "Goodpass1")

		unknown := f.reset.ConfirmReset(ctx, strings.Repeat("ab", 32), "Newpass123")

		used := f.requestResetSecret(t, "same@example.com")
		require.NoError(t, f.reset.ConfirmReset(ctx, used, "Newpass123"))
		reused := f.reset.ConfirmReset(ctx, used, "Newpass456")

		expiring := f.requestResetSecret(t, "same@example.com")
		f.clock.Advance(time.Hour)
		expired := f.reset.ConfirmReset(ctx, expiring, "Newpass789")

		for _, err := range []error{unknown, reused, expired} {
			require.Error(t, err)
			assert.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
			assert.Equal(t, "invalid or expired reset token", err.Error())
		}
	})

	t.Run("weak password is rejected before the token is touched", func(t *testing.T) {
		f := newFixture(t)
		res := f.register(t, "weak@example.com", "Goodpass1")
		secret := f.requestResetSecret(t, "weak@example.com")

		err := f.reset.ConfirmReset(ctx, secret, "short1")
		require.Error(t, err)
		assert.Equal(t, auth.KindValidation, auth.KindOf(err))
		assert.Nil(t, f.store.ResetsFor(res.User.ID)[0].UsedAt)

		require.NoError(t, f.reset.ConfirmReset(ctx, secret, "Goodpass2"))
	})

	failures := []string{
		"users.UpdatePassword",
		"resets.MarkUsed",
		"tokens.DeleteByUser",
		"tx.Commit",
	}
	for _, method := range failures {
		t.Run("rolls back when "+method+" fails", func(t *testing.T) {
			f := newFixture(t)
			reg := f.register(t, "atomic@example.com", "Goodpass1")
			secret := f.requestResetSecret(t, "atomic@example.com")
			f.store.FailOn(method, errors.New("injected failure"))

			err := f.reset.ConfirmReset(ctx, secret, "Newpass123")
			require.Error(t, err)
			assert.Equal(t, auth.KindInternal, auth.KindOf(err))

			user, _ := f.store.User(reg.User.ID)
			require.NoError(t, f.hasher.Verify("Goodpass1", user.PasswordHash), "password must be unchanged")
			assert.Equal(t, 1, f.store.RefreshTokenCount(reg.User.ID))
			assert.Nil(t, f.store.ResetsFor(reg.User.ID)[0].UsedAt)

			f.store.FailOn(method, nil)
			require.NoError(t, f.reset.ConfirmReset(ctx, secret, "Newpass123"), "token must remain redeemable")
		})
	}
}

func TestPasswordResetService_DoesNotLogSecrets(t *testing.T) {
	f := newFixture(t)
	f.register(t, "hush@example.com", "Goodpass1")
	secret := f.requestResetSecret(t, "hush@example.com")
	require.NoError(t, f.reset.ConfirmReset(context.Background(), secret, "Newpass123"))

	logs := f.logs.String()
	assert.NotContains(t, logs, secret)
	assert.NotContains(t, logs, auth.HashToken(secret))
	assert.NotContains(t, logs, "Newpass123")
}
