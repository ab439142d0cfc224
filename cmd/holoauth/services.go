// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/config"
)

// services are the auth engine components built over one database handle.
type services struct {
	sessions *auth.SessionManager
	resets   *auth.PasswordResetService
	janitor  *auth.Janitor
}

func newServices(cfg config.Config, db postgres.DB, mailer auth.Mailer, logger *slog.Logger) (*services, error) {
	users := postgres.NewUserRepository(db)
	tokens := postgres.NewRefreshTokenRepository(db)
	resets := postgres.NewPasswordResetRepository(db)
	hasher := auth.NewArgon2idHasher(cfg.Auth.Argon2)

	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithTracer(otel.Tracer("github.com/holomush/holoauth")),
	}

	codec, err := auth.NewAccessTokenCodec([]byte(cfg.Auth.JWTSecret), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return nil, err
	}

	sessions, err := auth.NewSessionManager(users, tokens, hasher, codec, auth.SessionConfig{
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	}, opts...)
	if err != nil {
		return nil, err
	}

	resetSvc, err := auth.NewPasswordResetService(auth.ResetDeps{
		Users:         users,
		Resets:        resets,
		RefreshTokens: tokens,
		Transactor:    postgres.NewTransactor(db),
		Hasher:        hasher,
		Mailer:        mailer,
	}, auth.ResetConfig{
		LinkBase:    cfg.Reset.URLBase,
		TokenTTL:    cfg.Reset.TokenTTL,
		MailTimeout: cfg.Mail.Timeout,
		Subject:     cfg.Reset.Subject,
	}, opts...)
	if err != nil {
		return nil, err
	}

	janitor, err := auth.NewJanitor(tokens, resets, opts...)
	if err != nil {
		return nil, err
	}

	return &services{sessions: sessions, resets: resetSvc, janitor: janitor}, nil
}
