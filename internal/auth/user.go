// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Credential validation constraints.
const (
	MaxEmailLength    = 254
	MinPasswordLength = 8
	MaxPasswordLength = 1024
)

// emailRegex is intentionally loose: one @ with non-blank text on both sides.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)

// User is a registered account. PasswordHash never leaves the core.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public projection of a User.
type Profile struct {
	ID    ulid.ULID `json:"id"`
	Email string    `json:"email"`
}

// Profile returns the public projection of u.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email}
}

// NewUser creates a User with a fresh ID. The email is normalized and
// validated; passwordHash must already be a digest.
func NewUser(email, passwordHash string, now time.Time) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the shape and length of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").
			Wrap(&Error{Kind: KindValidation, Message: "email is required"})
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Wrap(&Error{Kind: KindValidation, Message: "email is too long"})
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").
			Wrap(&Error{Kind: KindValidation, Message: "email is not a valid address"})
	}
	return nil
}

// ValidatePassword enforces the password strength policy: length between
// MinPasswordLength and MaxPasswordLength bytes, with at least one ASCII
// letter and one ASCII digit.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			Wrap(&Error{Kind: KindValidation, Message: "password must be at least 8 characters"})
	}
	if len(password) > MaxPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("max", MaxPasswordLength).
			Wrap(&Error{Kind: KindValidation, Message: "password is too long"})
	}

	var hasLetter, hasDigit bool
	for i := 0; i < len(password); i++ {
		c := password[i]
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			hasLetter = true
		}
	}
	if !hasLetter || !hasDigit {
		return oops.Code("AUTH_WEAK_PASSWORD").
			Wrap(&Error{Kind: KindValidation, Message: "password must contain a letter and a digit"})
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns an error matching ErrConflict if the
	// email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePassword replaces the stored digest. Returns ErrNotFound if the user is absent.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
