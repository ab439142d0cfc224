// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides in-memory fakes of the auth repositories for tests.
package authtest

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Store is an in-memory credential store. It implements auth.Transactor;
// Users, RefreshTokens and Resets return the repository views. A failed
// transaction restores the state captured when it began.
type Store struct {
	mu       sync.Mutex
	users    map[ulid.ULID]auth.User
	tokens   map[string]auth.RefreshToken
	resets   map[ulid.ULID]auth.PasswordReset
	failures map[string]error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[ulid.ULID]auth.User),
		tokens:   make(map[string]auth.RefreshToken),
		resets:   make(map[ulid.ULID]auth.PasswordReset),
		failures: make(map[string]error),
	}
}

// FailOn makes the named method return err until cleared with a nil err.
// Names are "<repo>.<Method>", e.g. "users.UpdatePassword" or "tokens.Consume".
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) failure(method string) error {
	return s.failures[method]
}

// InTransaction runs fn and restores the prior state if it fails.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if err := s.failure("tx.Begin"); err != nil {
		s.mu.Unlock()
		return err
	}
	users := maps.Clone(s.users)
	tokens := maps.Clone(s.tokens)
	resets := maps.Clone(s.resets)
	s.mu.Unlock()

	err := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = s.failure("tx.Commit")
	}
	if err != nil {
		s.users, s.tokens, s.resets = users, tokens, resets
		return err
	}
	return nil
}

// Users returns the user repository view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// RefreshTokens returns the refresh token repository view.
func (s *Store) RefreshTokens() *RefreshTokenRepository { return &RefreshTokenRepository{s: s} }

// Resets returns the password reset repository view.
func (s *Store) Resets() *PasswordResetRepository { return &PasswordResetRepository{s: s} }

// User returns a copy of the stored user.
func (s *Store) User(id ulid.ULID) (auth.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// RefreshTokenCount returns the number of live refresh tokens of a user.
func (s *Store) RefreshTokenCount(userID ulid.ULID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// RefreshToken returns a copy of the token with the given digest.
func (s *Store) RefreshToken(tokenHash string) (auth.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	return t, ok
}

// ResetsFor returns copies of every reset of a user.
func (s *Store) ResetsFor(userID ulid.ULID) []auth.PasswordReset {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.PasswordReset
	for _, r := range s.resets {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// UserRepository implements auth.UserRepository over a Store.
type UserRepository struct{ s *Store }

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.Create"); err != nil {
		return err
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return oops.Code("USER_EMAIL_CONFLICT").With("email", user.Email).Wrap(auth.ErrConflict)
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.GetByID"); err != nil {
		return nil, err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.GetByEmail"); err != nil {
		return nil, err
	}
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// UpdatePassword replaces the stored digest.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.UpdatePassword"); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	r.s.users[id] = u
	return nil
}

// RefreshTokenRepository implements auth.RefreshTokenRepository over a Store.
type RefreshTokenRepository struct{ s *Store }

// Create stores a new refresh token.
func (r *RefreshTokenRepository) Create(_ context.Context, token *auth.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("tokens.Create"); err != nil {
		return err
	}
	if _, exists := r.s.tokens[token.TokenHash]; exists {
		return oops.Code("REFRESH_TOKEN_CONFLICT").Wrap(auth.ErrConflict)
	}
	r.s.tokens[token.TokenHash] = *token
	return nil
}

// Consume deletes and returns the token with the given digest.
func (r *RefreshTokenRepository) Consume(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("tokens.Consume"); err != nil {
		return nil, err
	}
	t, ok := r.s.tokens[tokenHash]
	if !ok {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.s.tokens, tokenHash)
	return &t, nil
}

// DeleteByTokenHash removes the token with the given digest.
func (r *RefreshTokenRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("tokens.DeleteByTokenHash"); err != nil {
		return err
	}
	if _, ok := r.s.tokens[tokenHash]; !ok {
		return oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.s.tokens, tokenHash)
	return nil
}

// DeleteByUser removes every token of a user.
func (r *RefreshTokenRepository) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("tokens.DeleteByUser"); err != nil {
		return 0, err
	}
	var n int64
	for hash, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, hash)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (r *RefreshTokenRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("tokens.DeleteExpired"); err != nil {
		return 0, err
	}
	var n int64
	for hash, t := range r.s.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.s.tokens, hash)
			n++
		}
	}
	return n, nil
}

// PasswordResetRepository implements auth.PasswordResetRepository over a Store.
type PasswordResetRepository struct{ s *Store }

// Create stores a new password reset.
func (r *PasswordResetRepository) Create(_ context.Context, reset *auth.PasswordReset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("resets.Create"); err != nil {
		return err
	}
	r.s.resets[reset.ID] = *reset
	return nil
}

// GetActiveByTokenHash retrieves the unused reset with the given digest.
func (r *PasswordResetRepository) GetActiveByTokenHash(_ context.Context, tokenHash string) (*auth.PasswordReset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("resets.GetActiveByTokenHash"); err != nil {
		return nil, err
	}
	for _, reset := range r.s.resets {
		if reset.TokenHash == tokenHash && reset.UsedAt == nil {
			return &reset, nil
		}
	}
	return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// MarkUsed sets used_at if still unset.
func (r *PasswordResetRepository) MarkUsed(_ context.Context, id ulid.ULID, usedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("resets.MarkUsed"); err != nil {
		return err
	}
	reset, ok := r.s.resets[id]
	if !ok || reset.UsedAt != nil {
		return oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	reset.UsedAt = &usedAt
	r.s.resets[id] = reset
	return nil
}

// DeleteByUser removes every reset of a user.
func (r *PasswordResetRepository) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("resets.DeleteByUser"); err != nil {
		return 0, err
	}
	var n int64
	for id, reset := range r.s.resets {
		if reset.UserID == userID {
			delete(r.s.resets, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes resets that expired before cutoff or were used.
func (r *PasswordResetRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("resets.DeleteExpired"); err != nil {
		return 0, err
	}
	var n int64
	for id, reset := range r.s.resets {
		if reset.ExpiresAt.Before(cutoff) || reset.UsedAt != nil {
			delete(r.s.resets, id)
			n++
		}
	}
	return n, nil
}

var (
	_ auth.Transactor              = (*Store)(nil)
	_ auth.UserRepository          = (*UserRepository)(nil)
	_ auth.RefreshTokenRepository  = (*RefreshTokenRepository)(nil)
	_ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
)
