// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshToken is the persisted half of a session. Only the digest of the
// secret is stored.
type RefreshToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewRefreshToken creates a validated RefreshToken.
func NewRefreshToken(userID ulid.ULID, tokenHash string, createdAt, expiresAt time.Time) (*RefreshToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_EXPIRY").Errorf("expiry must be after creation time")
	}
	return &RefreshToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// IsExpiredAt returns true if the token is expired at t.
func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new refresh token.
	Create(ctx context.Context, token *RefreshToken) error

	// Consume deletes the token with the given digest and returns it in the
	// same statement. Concurrent consumers of one digest see at most one
	// success; the rest get ErrNotFound.
	Consume(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// DeleteByTokenHash removes the token with the given digest.
	// Returns ErrNotFound if nothing was deleted.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUser removes every token of a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteExpired removes tokens that expired before cutoff and returns the count.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
