// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// Default session lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// dummyPassword is hashed once per SessionManager so that logins for unknown
// emails pay the same verification cost as real ones.
//
//nolint:gosec // G101: not a credential; it never matches a stored digest.
const dummyPassword = "timing-parity-dummy-password-0"

// SessionConfig holds session lifetimes. Zero values select the defaults.
type SessionConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AuthResult is returned by every operation that opens or rotates a session.
type AuthResult struct {
	User                  Profile   `json:"user"`
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// SessionManager registers users and drives the session lifecycle:
// login opens a session, refresh rotates it, logout revokes it.
type SessionManager struct {
	users     UserRepository
	tokens    RefreshTokenRepository
	hasher    PasswordHasher
	codec     *AccessTokenCodec
	cfg       SessionConfig
	dummyHash string
	opts      serviceOptions
}

// NewSessionManager creates a SessionManager.
// Returns an error if any dependency is nil or a TTL is negative.
func NewSessionManager(
	users UserRepository,
	tokens RefreshTokenRepository,
	hasher PasswordHasher,
	codec *AccessTokenCodec,
	cfg SessionConfig,
	opts ...Option,
) (*SessionManager, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("refresh token repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if codec == nil {
		return nil, oops.Errorf("access token codec is required")
	}
	if cfg.AccessTokenTTL < 0 || cfg.RefreshTokenTTL < 0 {
		return nil, oops.Code("SESSION_INVALID_CONFIG").
			With("access_ttl", cfg.AccessTokenTTL.String()).
			With("refresh_ttl", cfg.RefreshTokenTTL.String()).
			Errorf("token lifetimes cannot be negative")
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("SESSION_INIT_FAILED").
			With("operation", "derive dummy hash").
			Wrap(err)
	}

	return &SessionManager{
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		codec:     codec,
		cfg:       cfg,
		dummyHash: dummyHash,
		opts:      newServiceOptions(opts),
	}, nil
}

// Register creates an account and opens its first session.
func (m *SessionManager) Register(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, done := m.opts.instrument(ctx, OpRegister)
	defer done(&err)

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, hash, m.opts.now())
	if err != nil {
		return nil, err
	}

	if err := m.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code("AUTH_EMAIL_TAKEN").Wrap(errEmailTaken)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	m.opts.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return m.issueTokenPair(ctx, user)
}

// Login verifies credentials and opens a session. Unknown emails and wrong
// passwords return the same unauthorized error after the same amount of work.
func (m *SessionManager) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, done := m.opts.instrument(ctx, OpLogin)
	defer done(&err)

	user, lookupErr := m.users.GetByEmail(ctx, NormalizeEmail(email))

	targetHash := m.dummyHash
	userExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify so that both branches cost one argon2id derivation.
	verifyErr := m.hasher.Verify(password, targetHash)
	if !userExists {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", "unknown email").
			Wrap(errUnauthorized)
	}
	if verifyErr != nil {
		return nil, verifyErr
	}

	if m.hasher.NeedsUpgrade(user.PasswordHash) {
		m.upgradeHash(ctx, user, password)
	}

	return m.issueTokenPair(ctx, user)
}

// upgradeHash re-derives the stored digest with current parameters. Failure
// is logged and does not fail the login.
func (m *SessionManager) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := m.hasher.Hash(password)
	if err == nil {
		err = m.users.UpdatePassword(ctx, user.ID, newHash)
	}
	if err != nil {
		m.opts.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(),
			"error", err)
		return
	}
	user.PasswordHash = newHash
	m.opts.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// Refresh rotates a session: the presented secret is consumed and a new
// token pair is issued for the same user. A secret can be redeemed once;
// replaying it, or presenting an unknown or expired one, is unauthorized.
func (m *SessionManager) Refresh(ctx context.Context, secret string) (result *AuthResult, err error) {
	ctx, done := m.opts.instrument(ctx, OpRefresh)
	defer done(&err)

	if secret == "" {
		return nil, oops.Code("AUTH_REFRESH_INVALID").
			With("reason", "empty token").
			Wrap(errUnauthorized)
	}

	record, err := m.tokens.Consume(ctx, HashToken(secret))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_REFRESH_INVALID").
				With("reason", "unknown or rotated token").
				Wrap(errUnauthorized)
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "consume refresh token").
			Wrap(err)
	}

	if record.IsExpiredAt(m.opts.now()) {
		return nil, oops.Code("AUTH_REFRESH_INVALID").
			With("reason", "expired token").
			With("user_id", record.UserID.String()).
			Wrap(errUnauthorized)
	}

	user, err := m.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_REFRESH_INVALID").
				With("reason", "user gone").
				With("user_id", record.UserID.String()).
				Wrap(errUnauthorized)
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get user by id").
			With("user_id", record.UserID.String()).
			Wrap(err)
	}

	return m.issueTokenPair(ctx, user)
}

// Logout revokes the session identified by secret. Unknown or already
// revoked secrets are unauthorized.
func (m *SessionManager) Logout(ctx context.Context, secret string) (err error) {
	ctx, done := m.opts.instrument(ctx, OpLogout)
	defer done(&err)

	if secret == "" {
		return oops.Code("AUTH_LOGOUT_INVALID").
			With("reason", "empty token").
			Wrap(errUnauthorized)
	}

	if err := m.tokens.DeleteByTokenHash(ctx, HashToken(secret)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_LOGOUT_INVALID").
				With("reason", "unknown token").
				Wrap(errUnauthorized)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete refresh token").
			Wrap(err)
	}
	return nil
}

// Authenticate verifies a bearer access token.
func (m *SessionManager) Authenticate(ctx context.Context, accessToken string) (claims *AccessClaims, err error) {
	_, done := m.opts.instrument(ctx, OpAuthenticate)
	defer done(&err)

	return m.codec.Verify(accessToken)
}

func (m *SessionManager) issueTokenPair(ctx context.Context, user *User) (*AuthResult, error) {
	access, accessExp, err := m.codec.Issue(user.ID, m.cfg.AccessTokenTTL)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "issue access token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	secret, hash, err := GenerateToken()
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "generate refresh token").
			Wrap(err)
	}

	now := m.opts.now()
	record, err := NewRefreshToken(user.ID, hash, now, now.Add(m.cfg.RefreshTokenTTL))
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "build refresh token").
			Wrap(err)
	}
	if err := m.tokens.Create(ctx, record); err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "persist refresh token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return &AuthResult{
		User:                  user.Profile(),
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          secret,
		RefreshTokenExpiresAt: record.ExpiresAt,
	}, nil
}
