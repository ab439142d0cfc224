// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/authtest"
)

//nolint:gosec // G101: test fixture, not a credential.
const testJWTSecret = "test-signing-secret-0123456789abcdef"

// newTestHasher returns an argon2id hasher with parameters cheap enough for tests.
func newTestHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, MemoryKiB: 1024, Threads: 1, KeyLen: 32})
}

func newTestCodec(t *testing.T, now func() time.Time) *auth.AccessTokenCodec {
	t.Helper()
	codec, err := auth.NewAccessTokenCodec([]byte(testJWTSecret), auth.WithCodecClock(now))
	require.NoError(t, err)
	return codec
}

// testClock is a settable time source shared by a fixture's services.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *authtest.Store
	mailer  *authtest.RecordingMailer
	clock   *testClock
	hasher  *auth.Argon2idHasher
	codec   *auth.AccessTokenCodec
	session *auth.SessionManager
	reset   *auth.PasswordResetService
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  authtest.NewStore(),
		mailer: &authtest.RecordingMailer{},
		clock:  newTestClock(),
		hasher: newTestHasher(),
		logs:   &bytes.Buffer{},
	}
	f.codec = newTestCodec(t, f.clock.Now)

	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts := []auth.Option{auth.WithClock(f.clock.Now), auth.WithLogger(logger)}

	var err error
	f.session, err = auth.NewSessionManager(
		f.store.Users(), f.store.RefreshTokens(), f.hasher, f.codec, auth.SessionConfig{}, opts...)
	require.NoError(t, err)

	f.reset, err = auth.NewPasswordResetService(f.resetDeps(), auth.ResetConfig{
		LinkBase: "https://app.example.com/",
	}, opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) resetDeps() auth.ResetDeps {
	return auth.ResetDeps{
		Users:         f.store.Users(),
		Resets:        f.store.Resets(),
		RefreshTokens: f.store.RefreshTokens(),
		Transactor:    f.store,
		Hasher:        f.hasher,
		Mailer:        f.mailer,
	}
}

// register creates a user through the SessionManager.
func (f *fixture) register(t *testing.T, email, password string) *auth.AuthResult {
	t.Helper()
	res, err := f.session.Register(context.Background(), email, password)
	require.NoError(t, err)
	return res
}
