// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordReset is a single-use, time-boxed authorization to change a
// user's password.
type PasswordReset struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// NewPasswordReset creates a validated PasswordReset instance.
func NewPasswordReset(userID ulid.ULID, tokenHash string, createdAt, expiresAt time.Time) (*PasswordReset, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry must be after creation time")
	}
	return &PasswordReset{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// IsUsed reports whether the reset has been redeemed.
func (r *PasswordReset) IsUsed() bool {
	return r.UsedAt != nil
}

// IsExpiredAt returns true if the reset is expired at now.
func (r *PasswordReset) IsExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ResetLink builds the link mailed to the user:
// <base without trailing slash>/reset?token=<secret>
func ResetLink(base, secret string) string {
	return strings.TrimRight(base, "/") + "/reset?token=" + url.QueryEscape(secret)
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Create stores a new password reset request.
	Create(ctx context.Context, reset *PasswordReset) error

	// GetActiveByTokenHash retrieves the unused reset with the given digest.
	// Inside a transaction the row stays locked until commit.
	// Returns ErrNotFound if absent or already used.
	GetActiveByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// MarkUsed sets used_at if it is still unset. Returns ErrNotFound if the
	// reset is absent or already used.
	MarkUsed(ctx context.Context, id ulid.ULID, usedAt time.Time) error

	// DeleteByUser removes all reset requests for a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteExpired removes resets that expired before cutoff or were used,
	// and returns the count.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
